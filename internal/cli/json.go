package cli

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regex to tokenize JSON parts:
	// 1. Keys (quoted strings followed by colon)
	// 2. String values (quoted strings)
	// 3. Numbers / Booleans / Null
	jsonTokenRegex = regexp.MustCompile(`("(\\u[a-zA-Z0-9]{4}|\\[^u]|[^\\"])*"(\s*:)?|\b(true|false|null)\b|-?\d+(?:\.\d*)?(?:[eE][+\-]?\d+)?)`)
)

// HighlightJSON takes a JSON string (minified or indented) and applies ANSI colors.
func HighlightJSON(jsonStr string) string {
	if !Enabled() {
		return jsonStr
	}

	return jsonTokenRegex.ReplaceAllStringFunc(jsonStr, func(token string) string {
		switch {
		case strings.HasSuffix(token, ":"): // Key ("key":)
			// Strip colon, colorize key, add colon back
			key := token[:len(token)-1]
			// Keys are Blue
			return fmt.Sprintf("%s%s%s:", Blue, key, ResetCode)

		case strings.HasPrefix(token, "\""): // String Value ("value")
			// Strings are Green
			return fmt.Sprintf("%s%s%s", Green, token, ResetCode)

		case token == "true" || token == "false": // Boolean
			// Booleans are Yellow
			return fmt.Sprintf("%s%s%s", Yellow, token, ResetCode)

		case token == "null": // Null
			// Null is Grey (dim)
			return fmt.Sprintf("%s%s%s", DimCode, token, ResetCode)

		default: // Number
			// Numbers are Purple
			return fmt.Sprintf("%s%s%s", Purple, token, ResetCode)
		}
	})
}

// PrettyFormat takes any interface, marshals it to indented JSON, and colorizes it.
// It returns the string representation.
func PrettyFormat(v interface{}) string {
	// If it's already a []byte or string that looks like JSON, try to format it
	var str string
	switch t := v.(type) {
	case []byte:
		str = string(t)
	case string:
		str = t
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%+v", v)
		}
		str = string(b)
	}

	return HighlightJSON(str)
}

// PrettyPrint prints the PrettyFormatted JSON to stdout with a newline.
func PrettyPrint(v interface{}) {
	fmt.Println(PrettyFormat(v))
}

// circuitOpenValueRegex matches a circuit_open key and its boolean value
// exactly as HighlightJSON leaves them (key followed by ResetCode and a
// colon, value wrapped in Yellow+ResetCode), so the value can be
// recolored afterward.
var circuitOpenValueRegex = regexp.MustCompile(`("circuit_open"` + regexp.QuoteMeta(ResetCode) + `:\s*)` + regexp.QuoteMeta(Yellow) + `(true|false)` + regexp.QuoteMeta(ResetCode))

// HighlightStatus layers router-specific coloring on top of HighlightJSON:
// an open circuit (circuit_open: true) reads as a hard failure signal
// (red) and a closed one as green, where HighlightJSON alone colors every
// boolean yellow, since generic JSON highlighting has no notion of what a
// provider's circuit_open field means.
func HighlightStatus(jsonStr string) string {
	highlighted := HighlightJSON(jsonStr)
	if !Enabled() {
		return highlighted
	}
	return circuitOpenValueRegex.ReplaceAllStringFunc(highlighted, func(match string) string {
		m := circuitOpenValueRegex.FindStringSubmatch(match)
		color := Green
		if m[2] == "true" {
			color = Red
		}
		return fmt.Sprintf("%s%s%s%s", m[1], color, m[2], ResetCode)
	})
}

// PrettyPrintStatus marshals a /v1/status payload ({"providers": provider
// name -> snapshot}, each snapshot with its circuit_open flag) and prints it with
// circuit-state-aware coloring, so an operator scanning routerctl status
// output sees a tripped circuit at a glance rather than having to read
// every field.
func PrettyPrintStatus(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(HighlightStatus(string(b)))
}
