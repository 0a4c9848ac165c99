package executor

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

// ValidateParams decodes raw request parameters. A missing body yields the
// defaults. A body that is not a JSON object is a permanent invalid_params
// error; an out-of-range or unreadable limit falls back to DefaultLimit.
func ValidateParams(raw json.RawMessage) (domain.TaskParams, error) {
	params := domain.DefaultTaskParams()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return params, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return params, errkind.Wrap(errkind.InvalidParams, "parameters must be a JSON object", err)
	}

	if v, ok := fields["limit"]; ok {
		params.Limit = coerceLimit(v)
	}
	for _, key := range []string{"forceRefresh", "force_refresh"} {
		if v, ok := fields[key]; ok {
			params.ForceRefresh = coerceBool(v)
			break
		}
	}
	return params, nil
}

func coerceLimit(v any) int {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return domain.DefaultLimit
		}
		n = parsed
	default:
		return domain.DefaultLimit
	}

	if math.IsNaN(n) || n != math.Trunc(n) || n < 1 || n > domain.MaxLimit {
		return domain.DefaultLimit
	}
	return int(n)
}

func coerceBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "t", "true", "yes", "on":
			return true
		}
	}
	return false
}
