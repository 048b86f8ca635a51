package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	supervisorAPIBase = "http://supervisor/core/api"
	defaultAPIURL     = "http://homeassistant.local:8123"

	// maxResponseBytes caps response bodies; the error log can be large
	// but anything past this is truncated rather than buffered.
	maxResponseBytes = 8 << 20
)

// APIError is a non-2xx response from Home Assistant.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("homeassistant: API error (%d): %s", e.StatusCode, e.Body)
}

// ClientConfig resolves the REST endpoint and credentials. When
// SupervisorToken is set and URL is empty the client talks to the
// supervisor proxy; otherwise it connects directly.
type ClientConfig struct {
	URL             string
	Token           string
	SupervisorToken string
	HTTPClient      *http.Client
}

// Client is the REST client for Home Assistant's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a client from config.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	var baseURL, token string
	if cfg.SupervisorToken != "" && cfg.URL == "" {
		baseURL = supervisorAPIBase
		token = cfg.SupervisorToken
	} else {
		raw := cfg.URL
		if raw == "" {
			raw = defaultAPIURL
		}
		baseURL = strings.TrimRight(raw, "/") + "/api"
		token = cfg.Token
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		log:     slog.With("component", "homeassistant"),
	}
}

// BaseURL returns the resolved API base.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("homeassistant: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("homeassistant: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("homeassistant: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("homeassistant: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Get performs a GET and decodes the JSON response into out (when non-nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("homeassistant: decode %s: %w", path, err)
	}
	return nil
}

// Post performs a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("homeassistant: decode %s: %w", path, err)
	}
	return nil
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// Ping reports whether the API is reachable.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "", nil)
	return err == nil
}

// GetConfig fetches the core configuration.
func (c *Client) GetConfig(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.Get(ctx, "config", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStates fetches all entity states.
func (c *Client) ListStates(ctx context.Context) ([]EntityState, error) {
	var out []EntityState
	if err := c.Get(ctx, "states", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetState fetches one entity's state.
func (c *Client) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	var out EntityState
	if err := c.Get(ctx, "states/"+url.PathEscape(entityID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServices fetches the available services grouped by domain.
func (c *Client) ListServices(ctx context.Context) (map[string][]Service, error) {
	var raw []struct {
		Domain   string `json:"domain"`
		Services map[string]struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"services"`
	}
	if err := c.Get(ctx, "services", &raw); err != nil {
		return nil, err
	}

	result := make(map[string][]Service, len(raw))
	for _, domain := range raw {
		services := make([]Service, 0, len(domain.Services))
		for name, svc := range domain.Services {
			desc := svc.Description
			if desc == "" {
				desc = svc.Name
			}
			services = append(services, Service{
				Domain:      domain.Domain,
				Name:        name,
				Description: desc,
			})
		}
		result[domain.Domain] = services
	}
	return result, nil
}

// CallService invokes domain.service. Target fields (entity_id and friends)
// are merged inline into the JSON body alongside the service data. Returns
// the entity states the call affected, when Home Assistant reports them.
func (c *Client) CallService(ctx context.Context, domain, service string, serviceData, target map[string]any) ([]EntityState, error) {
	body := map[string]any{}
	for k, v := range serviceData {
		body[k] = v
	}
	for k, v := range target {
		body[k] = v
	}

	c.log.Info("calling service", "domain", domain, "service", service)

	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("services/%s/%s", domain, service), body)
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(data, &states); err != nil {
		// Some services return non-list payloads; the call still succeeded.
		return nil, nil
	}
	return states, nil
}

// GetErrorLog fetches the plain-text error log.
func (c *Client) GetErrorLog(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "error_log", nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetLogbook fetches logbook entries, optionally filtered by entity and
// bounded by start/end timestamps (RFC 3339).
func (c *Client) GetLogbook(ctx context.Context, entityID, startTime, endTime string) ([]map[string]any, error) {
	endpoint := "logbook"
	if startTime != "" {
		endpoint += "/" + url.PathEscape(startTime)
	}
	params := url.Values{}
	if entityID != "" {
		params.Set("entity", entityID)
	}
	if endTime != "" {
		params.Set("end_time", endTime)
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var out []map[string]any
	if err := c.Get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory fetches state history for the given entities.
func (c *Client) GetHistory(ctx context.Context, entityIDs []string, startTime, endTime string) ([][]EntityState, error) {
	endpoint := "history/period"
	if startTime != "" {
		endpoint += "/" + url.PathEscape(startTime)
	}
	params := url.Values{}
	params.Set("filter_entity_id", strings.Join(entityIDs, ","))
	if endTime != "" {
		params.Set("end_time", endTime)
	}
	endpoint += "?" + params.Encode()

	var out [][]EntityState
	if err := c.Get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Configuration-object CRUD. Each class (automation, script, scene, and the
// helper platforms) exposes get/upsert/delete on a deterministic path keyed
// by the object's internal id.

// GetObjectConfig fetches the stored configuration of one object.
func (c *Client) GetObjectConfig(ctx context.Context, class, id string) (map[string]any, error) {
	var out map[string]any
	path := fmt.Sprintf("config/%s/config/%s", class, url.PathEscape(id))
	if err := c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertObjectConfig creates or replaces one object's configuration.
func (c *Client) UpsertObjectConfig(ctx context.Context, class, id string, config map[string]any) error {
	path := fmt.Sprintf("config/%s/config/%s", class, url.PathEscape(id))
	return c.Post(ctx, path, config, nil)
}

// DeleteObjectConfig deletes one object.
func (c *Client) DeleteObjectConfig(ctx context.Context, class, id string) error {
	path := fmt.Sprintf("config/%s/config/%s", class, url.PathEscape(id))
	return c.Delete(ctx, path)
}

// SendTelegramMessage delivers one message chunk through the telegram_bot
// integration.
func (c *Client) SendTelegramMessage(ctx context.Context, chatID int64, message string) error {
	data := map[string]any{
		"message":    message,
		"target":     chatID,
		"parse_mode": "Markdown",
	}
	_, err := c.CallService(ctx, "telegram_bot", "send_message", data, nil)
	return err
}
