package ws

import (
	"encoding/json"
	"slices"

	log "github.com/sirupsen/logrus"
)

// Payload is a decoded client message.
type Payload map[string]any

// parsePayload decodes a message whose type is one of expected.
func parsePayload(raw []byte, expected ...string) Payload {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		log.Warn("Invalid payload received")
		return nil
	}
	if !slices.Contains(expected, p.Type()) {
		log.Warn("Invalid payload received")
		return nil
	}
	return p
}

func (p Payload) Type() string {
	t, _ := p["type"].(string)
	return t
}

// Schema returns the schema, which must be a non-empty string.
func (p Payload) Schema() (string, bool) {
	schema, ok := p["schema"].(string)
	return schema, ok && schema != ""
}

// Channel returns the optional channel. A channel that is set must be a
// string.
func (p Payload) Channel() (string, bool) {
	v, ok := p["channel"]
	if !ok || v == nil {
		return "", true
	}
	channel, ok := v.(string)
	return channel, ok
}

// String returns a string value, or empty if there is none.
func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Show formats a value for error messages.
func (p Payload) Show(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	data, _ := json.Marshal(p[key])
	return string(data)
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
