package bridge

import "time"

// State is the lifecycle state of a bridge
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Snapshot is a consistent view of a controller. URL is non-empty only when
// State is StateReady.
type Snapshot struct {
	State         State     `json:"state"`
	URL           string    `json:"url,omitempty"`
	Sequence      uint64    `json:"sequence"`
	UpdatedAt     time.Time `json:"updated_at"`
	TokenAcquired bool      `json:"token_acquired"`
	LastError     string    `json:"last_error,omitempty"`
}

// Notification messages shown to the user
const (
	msgGenerating   = "Generating authentication token..."
	msgGenerated    = "Authentication token generated successfully!"
	msgNoToken      = "Failed to generate authentication token"
	msgIssuerError  = "Error generating authentication token"
	msgDecodeFailed = "Error decoding token"
)
