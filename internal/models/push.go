package models

// Push feed event types
const (
	PushEventMessageNew = "message.new"
	PushEventMessageAck = "message.ack"
)

// PushEnvelope is one frame from the backend's websocket push feed.
// New inbound messages and status transitions arrive through the same
// stream, with no ordering guarantee relative to REST responses.
type PushEnvelope struct {
	Event     string  `json:"event"`
	Timestamp int64   `json:"timestamp"`
	Message   Message `json:"message"`
}
