package types

import "time"

// ClientMetadata is the free-form per-client record the core never
// inspects — only timestamps and stores it.
type ClientMetadata struct {
	ClientID  string      `json:"client_id"`
	Metadata  interface{} `json:"metadata"`
	UpdatedAt time.Time   `json:"updated_at"`
}
