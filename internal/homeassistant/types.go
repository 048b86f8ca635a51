// Package homeassistant provides the Home Assistant REST client and the
// WebSocket event bridge the agent runs against.
package homeassistant

import "encoding/json"

// EntityState is one entity's current state as returned by /api/states.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

// FriendlyName returns the friendly_name attribute, or empty.
func (s EntityState) FriendlyName() string {
	if name, ok := s.Attributes["friendly_name"].(string); ok {
		return name
	}
	return ""
}

// Service describes one callable service within a domain.
type Service struct {
	Domain      string `json:"domain"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Event is one frame from the event bus.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired string          `json:"time_fired"`
}

// TelegramEvent is the payload of telegram_text and telegram_command events
// delivered by Home Assistant's telegram_bot integration.
type TelegramEvent struct {
	MessageID int64  `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	Text      string `json:"text"`
	Command   string `json:"command"`

	// Args of a telegram_command event arrive as an array of words.
	Args []string `json:"args"`

	FromFirstName string `json:"from_first_name"`
	FromLastName  string `json:"from_last_name"`
	FromUsername  string `json:"from_username"`
	Date          int64  `json:"date"`
}

// RegistryEntry is one row of the entity registry, read over the socket.
type RegistryEntry struct {
	EntityID   string   `json:"entity_id"`
	Name       string   `json:"name"`
	Platform   string   `json:"platform"`
	AreaID     string   `json:"area_id"`
	DeviceID   string   `json:"device_id"`
	Labels     []string `json:"labels"`
	DisabledBy string   `json:"disabled_by"`
}

// Area is one row of the area registry.
type Area struct {
	AreaID  string `json:"area_id"`
	Name    string `json:"name"`
	FloorID string `json:"floor_id"`
}

// Label is one row of the label registry.
type Label struct {
	LabelID string `json:"label_id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}
