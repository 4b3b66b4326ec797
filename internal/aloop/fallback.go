package aloop

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// legacyCallPattern matches the transitional inline-call syntax spec.md
// §4.3 calls "legacy fallback": identifier(key=val, key2=val2).
var legacyCallPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(([^)]*)\)$`)

// parseLegacyInlineCall recognizes the identifier(key=val, ...) shape some
// older models still emit as plain content instead of a structured
// tool_calls entry. It returns false for anything else, including
// malformed argument lists — those fall through to ordinary termination
// rather than an error, since this path is best-effort.
func parseLegacyInlineCall(content string) (name string, arguments json.RawMessage, ok bool) {
	trimmed := strings.TrimSpace(content)
	m := legacyCallPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return "", nil, false
	}

	name = m[1]
	argList := strings.TrimSpace(m[2])
	params := map[string]any{}

	if argList != "" {
		for _, pair := range strings.Split(argList, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 {
				return "", nil, false
			}
			key := strings.TrimSpace(kv[0])
			if key == "" {
				return "", nil, false
			}
			params[key] = coerceLegacyValue(strings.TrimSpace(kv[1]))
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", nil, false
	}
	return name, raw, true
}

func coerceLegacyValue(v string) any {
	if n := len(v); n >= 2 {
		if (v[0] == '"' && v[n-1] == '"') || (v[0] == '\'' && v[n-1] == '\'') {
			return v[1 : n-1]
		}
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
