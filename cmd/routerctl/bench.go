package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/llmrouter/router/internal/cli"
)

// cmdBench load-tests a running router's chat endpoint with vegeta,
// grounded on the teacher's cmd/benchmark/bench.go (which builds and
// spawns its own server under test); this variant attacks a router the
// caller already has running, the way an operator would check capacity
// before a traffic spike.
func cmdBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	base := fs.String("base-url", "http://localhost:8080", "router base URL")
	key := fs.String("key", "", "bearer token")
	rate := fs.Int("rate", 50, "requests per second")
	duration := fs.Duration("duration", 10*time.Second, "attack duration")
	model := fs.String("model", "", "force_provider value, empty for normal routing")
	fs.Parse(args)

	body, _ := json.Marshal(map[string]interface{}{
		"messages":       []map[string]string{{"role": "user", "content": "Say hi in five words."}},
		"max_tokens":     32,
		"force_provider": *model,
	})

	header := make(map[string][]string)
	header["Content-Type"] = []string{"application/json"}
	if *key != "" {
		header["Authorization"] = []string{"Bearer " + *key}
	}

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: "POST",
		URL:    *base + "/v1/chat/completions",
		Body:   bytes.Clone(body),
		Header: header,
	})

	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "routerctl-bench") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Printf("%s requests: %d, success: %.2f%%\n", cli.Arrow(), metrics.Requests, metrics.Success*100)
	fmt.Printf("  p50: %s  p95: %s  p99: %s  max: %s\n",
		metrics.Latencies.P50, metrics.Latencies.P95, metrics.Latencies.P99, metrics.Latencies.Max)
	for code, count := range metrics.StatusCodes {
		fmt.Printf("  [%s] %d\n", code, count)
	}

	if metrics.Success < 1.0 {
		os.Exit(1)
	}
}
