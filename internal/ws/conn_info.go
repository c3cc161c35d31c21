package ws

import "time"

// ConnInfo captures the identity and telemetry context of one live session.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
