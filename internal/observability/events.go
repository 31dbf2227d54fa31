package observability

import "time"

// Routing keys for session lifecycle and engine events published to the
// topic exchange.
const (
	RouteSessionEvents  = "ws_events.sessions"
	RoutePresenceEvents = "ws_events.presence"
	RouteUnreadEvents   = "ws_events.unread"
)

// EventEnvelope wraps every engine event put on the broker. OccurredAt
// is stamped by PublishEvent when left zero.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// SessionPayload describes one websocket session for lifecycle events.
type SessionPayload struct {
	ConnID     string `json:"conn_id"`
	UserID     int    `json:"user_id"`
	DeviceID   string `json:"device_id"`
	IP         string `json:"ip"`
	Event      string `json:"event"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
