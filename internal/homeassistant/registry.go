package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// The entity, area, and label registries are only reachable over the
// WebSocket API. RegistryClient runs a one-shot round trip per read or
// update: connect, authenticate, send a single command with id 1, collect
// the result, close.
type RegistryClient struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewRegistryClient creates a one-shot registry client with the same URL
// resolution as the bridge.
func NewRegistryClient(cfg BridgeConfig) *RegistryClient {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	url, token := resolveWebSocketURL(cfg)
	return &RegistryClient{url: url, token: token, dialer: dialer}
}

// command runs one authenticated command and returns its result payload.
func (r *RegistryClient) command(ctx context.Context, commandType string, payload map[string]any) (json.RawMessage, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("homeassistant: dial %s: %w", r.url, err)
	}
	defer conn.Close()

	if err := authenticate(conn, r.token); err != nil {
		return nil, fmt.Errorf("homeassistant: %w", err)
	}

	cmd := map[string]any{"id": 1, "type": commandType}
	for k, v := range payload {
		cmd[k] = v
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return nil, fmt.Errorf("homeassistant: send %s: %w", commandType, err)
	}

	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("homeassistant: read %s result: %w", commandType, err)
	}
	if frame.Type != "result" || frame.Success == nil || !*frame.Success {
		return nil, fmt.Errorf("homeassistant: %s failed: %s", commandType, frame.Message)
	}
	return frame.Result, nil
}

// ListEntities returns the entity registry.
func (r *RegistryClient) ListEntities(ctx context.Context) ([]RegistryEntry, error) {
	result, err := r.command(ctx, "config/entity_registry/list", nil)
	if err != nil {
		return nil, err
	}
	var entries []RegistryEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("homeassistant: decode entity registry: %w", err)
	}
	return entries, nil
}

// GetEntity returns one entity registry entry.
func (r *RegistryClient) GetEntity(ctx context.Context, entityID string) (*RegistryEntry, error) {
	result, err := r.command(ctx, "config/entity_registry/get", map[string]any{
		"entity_id": entityID,
	})
	if err != nil {
		return nil, err
	}
	var entry RegistryEntry
	if err := json.Unmarshal(result, &entry); err != nil {
		return nil, fmt.Errorf("homeassistant: decode registry entry: %w", err)
	}
	return &entry, nil
}

// UpdateEntity applies updates (name, new_entity_id, area_id, labels) to
// one entity registry entry.
func (r *RegistryClient) UpdateEntity(ctx context.Context, entityID string, updates map[string]any) error {
	payload := map[string]any{"entity_id": entityID}
	for k, v := range updates {
		payload[k] = v
	}
	_, err := r.command(ctx, "config/entity_registry/update", payload)
	return err
}

// ListAreas returns the area registry.
func (r *RegistryClient) ListAreas(ctx context.Context) ([]Area, error) {
	result, err := r.command(ctx, "config/area_registry/list", nil)
	if err != nil {
		return nil, err
	}
	var areas []Area
	if err := json.Unmarshal(result, &areas); err != nil {
		return nil, fmt.Errorf("homeassistant: decode area registry: %w", err)
	}
	return areas, nil
}

// ListLabels returns the label registry.
func (r *RegistryClient) ListLabels(ctx context.Context) ([]Label, error) {
	result, err := r.command(ctx, "config/label_registry/list", nil)
	if err != nil {
		return nil, err
	}
	var labels []Label
	if err := json.Unmarshal(result, &labels); err != nil {
		return nil, fmt.Errorf("homeassistant: decode label registry: %w", err)
	}
	return labels, nil
}
