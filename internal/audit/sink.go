package audit

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/llmrouter/router/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sink is an optional, disabled-by-default SQLite collector for
// RouteEvents. It is an external collaborator the core never imports:
// Router only calls the onRoute callback it was given, and main.go is
// free to wire that callback to a Sink or to nothing at all.
type Sink struct {
	logger    *zap.Logger
	db        *sqlx.DB
	events    chan domain.RouteEvent
	batchSize int
	flush     time.Duration
	done      chan struct{}
}

// Open connects to dsn, applies embedded migrations, and starts the
// background batching worker. Call Close to flush and release the
// connection.
func Open(dsn string, logger *zap.Logger) (*Sink, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	s := &Sink{
		logger:    logger,
		db:        db,
		events:    make(chan domain.RouteEvent, 10000),
		batchSize: 50,
		flush:     5 * time.Second,
		done:      make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

func runMigrations(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Record is the onRoute callback shape Router expects. Never blocks
// the routing hot path: a full buffer drops the event and logs a
// warning rather than applying backpressure.
func (s *Sink) Record(ev domain.RouteEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("audit buffer full, dropping route event", zap.String("provider", ev.Provider))
	}
}

func (s *Sink) worker() {
	defer close(s.done)

	batch := make([]domain.RouteEvent, 0, s.batchSize)
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			if err := s.insert(ev); err != nil {
				s.logger.Error("audit: failed to persist route event", zap.Error(err))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				flushBatch()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				flushBatch()
			}
		case <-ticker.C:
			flushBatch()
		}
	}
}

func (s *Sink) insert(ev domain.RouteEvent) error {
	_, err := s.db.NamedExecContext(context.Background(), `
		INSERT INTO route_events (provider, latency_ms, attempts, priority, session_id, success, error_kind)
		VALUES (:provider, :latency_ms, :attempts, :priority, :session_id, :success, :error_kind)`,
		map[string]interface{}{
			"provider":   ev.Provider,
			"latency_ms": ev.LatencyMS,
			"attempts":   ev.Attempts,
			"priority":   string(ev.Priority),
			"session_id": ev.SessionID,
			"success":    ev.Success,
			"error_kind": string(ev.ErrorKind),
		})
	return err
}

// Close stops accepting new events, flushes the remaining batch, and
// closes the underlying connection.
func (s *Sink) Close() error {
	close(s.events)
	<-s.done
	return s.db.Close()
}
