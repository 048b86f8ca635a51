package models

// Source identifies the channel an inbound message arrived on.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWeb      Source = "web"
	SourceUnknown  Source = "unknown"
)

// UserContext attributes one inbound message to an operator identity.
// It is derived per message and never persisted on its own; UserID is the
// partition key for history, audit, and chat filtering.
type UserContext struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Source      Source `json:"source"`
}
