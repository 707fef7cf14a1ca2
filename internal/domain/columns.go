package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Customer decodes a raw table row keyed by column name. Columns outside the
// mapping are kept in Extra.
func (c Columns) Customer(row map[string]any) Customer {
	out := Customer{
		ID:          stringValue(row[c.ID]),
		Name:        stringValue(row[c.Name]),
		Plan:        stringValue(row[c.Plan]),
		Status:      stringValue(row[c.Status]),
		LastContact: timeValue(row[c.LastContact]),
	}
	for k, v := range row {
		switch k {
		case c.ID, c.Name, c.Plan, c.Status, c.LastContact:
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[k] = v
	}
	return out
}

// Values translates logical fields into column name keyed values. Unknown
// fields are an error.
func (c Columns) Values(fields Fields) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for field, v := range fields {
		column := c.Column(field)
		if column == "" {
			return nil, fmt.Errorf("unknown customer field %q", field)
		}
		out[column] = v
	}
	return out, nil
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeValue(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				return t
			}
		}
	case []byte:
		return timeValue(string(v))
	}
	return time.Time{}
}
