package comm

import "encoding/json"

// NATS subjects shared by the services.
const (
	ResultsChangedTopic  = "results-changed"
	ElectionServiceTopic = "election.service"
)

// Message types on the NATS subjects.
const (
	TypeResultsChanged = "results-changed"
	TypeGetSummary     = "get-summary"
	TypeSummary        = "summary"
	TypeError          = "error"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "results-changed", "get-summary"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// SummaryRequest asks the election service for the summary of a vote or
// an election.
type SummaryRequest struct {
	Principal string `json:"principal"`
	Kind      string `json:"kind"`
	ID        string `json:"id"`
}

// NewMessage wraps data of the given type into a WSMessage payload.
func NewMessage(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{Type: msgType, Data: raw})
}
