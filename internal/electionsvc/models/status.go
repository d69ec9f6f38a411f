package models

import (
	"encoding/json"
	"time"
)

const (
	StatusUnknown = "unknown"
	StatusInterim = "interim"
	StatusFinal   = "final"
)

// Stati lists the accepted result states.
var Stati = []string{StatusUnknown, StatusInterim, StatusFinal}

// Completed tells if results are complete. An explicit status wins over
// the counted state of the results.
func Completed(status string, counted bool) bool {
	switch status {
	case StatusFinal:
		return true
	case StatusInterim:
		return false
	}
	return counted
}

func intPtr(v int) *int {
	return &v
}

// Field is a single column of an export row.
type Field struct {
	Key   string
	Value any
}

// Row is an export record keeping the column order.
type Row []Field

func (r *Row) Set(key string, value any) {
	*r = append(*r, Field{Key: key, Value: value})
}

func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

func (r Row) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range r {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}

// Progress is a (counted, total) pair.
type Progress struct {
	Counted int `json:"counted"`
	Total   int `json:"total"`
}

// Summary is the short representation posted to webhooks and served by
// the summary endpoints.
type Summary struct {
	Type           string            `json:"type"`
	ID             string            `json:"id"`
	Title          map[string]string `json:"title"`
	Date           string            `json:"date"`
	Domain         string            `json:"domain"`
	Completed      bool              `json:"completed"`
	LastModified   *time.Time        `json:"last_modified"`
	Progress       Progress          `json:"progress"`
	Answer         *string           `json:"answer,omitempty"`
	YeasPercentage *float64          `json:"yeas_percentage,omitempty"`
	NaysPercentage *float64          `json:"nays_percentage,omitempty"`
	Elected        [][2]string       `json:"elected,omitempty"`
}
