package models

import "time"

// AppLogEntry is one persisted application log event. Observability only;
// nothing in the engine reads these back.
type AppLogEntry struct {
	ID             int64     `json:"id"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
	Level          string    `json:"level"`
	Category       string    `json:"category"`
	Message        string    `json:"message"`
	Exception      string    `json:"exception,omitempty"`
	PropertiesJSON string    `json:"properties_json,omitempty"`
}
