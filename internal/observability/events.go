package observability

// EventEnvelope wraps a websocket lifecycle or notification event for the
// marketplace event bus. EventType groups a stream, EventName names the
// concrete occurrence within it.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders carries request correlation onto the bus; empty values are
// omitted so consumers can rely on present keys being meaningful.
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
