// ABOUTME: Parser for single-line StateChanged events
// ABOUTME: Splits key=value pairs without breaking on embedded '=' in blobs or URLs
package protocol

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/metrics"
)

// StateChange is one parsed StateChanged line.
type StateChange struct {
	Instance string
	Events   EventMap
}

var reStateChanged = regexp.MustCompile(`^StateChanged\s+(\S+)\s+(.+)$`)

// ParseStateChanged parses `StateChanged <instance> key=value key=value ...`.
// Returns false (after logging) when the line does not match that shape.
func ParseStateChanged(line string) (*StateChange, bool) {
	m := reStateChanged.FindStringSubmatch(line)
	if m == nil {
		logging.Warn().Str("line", line).Msg("invalid StateChanged line")
		metrics.ParseFailures.WithLabelValues("stateChanged").Inc()
		return nil, false
	}

	return &StateChange{
		Instance: m[1],
		Events:   parsePairs(m[2]),
	}, true
}

// parsePairs splits space-separated key=value pairs. A value runs verbatim
// to the next space-delimited key= boundary, so spaces inside track names,
// URLs with query strings, and '=' inside angle-bracket blobs all survive.
func parsePairs(s string) EventMap {
	events := make(EventMap)
	tokens := strings.Fields(s)

	var key string
	var parts []string
	flush := func() {
		if key != "" {
			events[normalizeKey(key)] = coerce(key, strings.Join(parts, " "))
		}
	}

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		i++

		k, v, ok := splitPair(tok)
		if !ok {
			// Continuation of the previous value.
			if key != "" {
				parts = append(parts, tok)
			}
			continue
		}

		flush()
		key, parts = k, []string{v}

		// An angle-bracket blob may span tokens and contain its own key=
		// sequences; keep consuming until the brackets balance out.
		if strings.HasPrefix(v, "<") {
			for !balanced(strings.Join(parts, " ")) && i < len(tokens) {
				parts = append(parts, tokens[i])
				i++
			}
		}
	}
	flush()

	return events
}

// splitPair splits one token at its first '='. The key must be word
// characters only; anything else is a continuation of the previous value.
func splitPair(token string) (string, string, bool) {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return "", "", false
	}
	key := token[:eq]
	for _, r := range key {
		if !isWordChar(r) {
			return "", "", false
		}
	}
	return key, token[eq+1:], true
}

func balanced(s string) bool {
	return strings.Count(s, "<") <= strings.Count(s, ">")
}

// coerce applies the StateChanged typing rules: ThumbsUp/ThumbsDown are
// always integers, True/False become booleans, everything else stays a
// string. Blob and URL values are never coerced.
func coerce(key, value string) any {
	if key == "ThumbsUp" || key == "ThumbsDown" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return n
	}

	if strings.HasPrefix(value, "<") || strings.HasPrefix(value, "http") {
		return value
	}

	switch value {
	case "True":
		return true
	case "False":
		return false
	}
	return value
}

// normalizeKey upper-cases the first letter so wire variants of the same
// event name collapse to one key.
func normalizeKey(key string) string {
	r := []rune(key)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
