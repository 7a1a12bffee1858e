package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Parameter extraction. JSON decoding hands numbers over as float64 and
// lists as []interface{}; these helpers coerce them and produce the
// envelope's MISSING_<FIELD> / INVALID_<FIELD> codes.

type paramError struct {
	code    string
	message string
}

func (e *paramError) Error() string { return e.message }

func missingParam(field string) *paramError {
	code := "MISSING_" + strings.ToUpper(field)
	if strings.EqualFold(field, "id") {
		code = "MISSING_ID"
	}
	return &paramError{code: code, message: fmt.Sprintf("parameter %q is required", field)}
}

func invalidParam(field, reason string) *paramError {
	return &paramError{
		code:    "INVALID_" + strings.ToUpper(field),
		message: fmt.Sprintf("parameter %q is invalid: %s", field, reason),
	}
}

// failFromParam converts a parameter error into an envelope failure.
func failFromParam(err error) Response {
	if pe, ok := err.(*paramError); ok {
		return Fail(pe.code, pe.message)
	}
	return Fail("INVALID_DATA", err.Error())
}

func requireID(params Params, field string) (uint, error) {
	v, ok := params[field]
	if !ok || v == nil {
		return 0, missingParam(field)
	}
	switch n := v.(type) {
	case float64:
		if n <= 0 || n != float64(uint(n)) {
			return 0, invalidParam(field, "must be a positive integer")
		}
		return uint(n), nil
	case int:
		if n <= 0 {
			return 0, invalidParam(field, "must be a positive integer")
		}
		return uint(n), nil
	case uint:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil || i <= 0 {
			return 0, invalidParam(field, "must be a positive integer")
		}
		return uint(i), nil
	default:
		return 0, invalidParam(field, "must be a number")
	}
}

func requireString(params Params, field string) (string, error) {
	v, ok := params[field]
	if !ok || v == nil {
		return "", missingParam(field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", invalidParam(field, "must be a non-empty string")
	}
	return s, nil
}

func optionalString(params Params, field string) string {
	if s, ok := params[field].(string); ok {
		return s
	}
	return ""
}

func requireFloat(params Params, field string) (float64, error) {
	v, ok := params[field]
	if !ok || v == nil {
		return 0, missingParam(field)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, invalidParam(field, "must be a number")
		}
		return f, nil
	default:
		return 0, invalidParam(field, "must be a number")
	}
}

func optionalBool(params Params, field string) bool {
	b, _ := params[field].(bool)
	return b
}

func requireIDList(params Params, field string) ([]uint, error) {
	v, ok := params[field]
	if !ok || v == nil {
		return nil, missingParam(field)
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, invalidParam(field, "must be a list of ids")
	}
	ids := make([]uint, 0, len(raw))
	for _, item := range raw {
		n, ok := item.(float64)
		if !ok || n <= 0 || n != float64(uint(n)) {
			return nil, invalidParam(field, "must contain positive integers")
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

func optionalStringList(params Params, field string) []string {
	raw, ok := params[field].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func requireTime(params Params, field string) (time.Time, error) {
	s, err := requireString(params, field)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalidParam(field, "must be RFC3339")
	}
	return t, nil
}

// pagination reads page/pageSize with the documented defaults.
func pagination(params Params) (page, pageSize int) {
	page, pageSize = 1, 20
	if n, ok := params["page"].(float64); ok && n >= 1 {
		page = int(n)
	}
	if n, ok := params["pageSize"].(float64); ok && n >= 1 {
		pageSize = int(n)
	}
	return page, pageSize
}
