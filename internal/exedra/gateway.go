package exedra

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// DefaultCommissionTimeout bounds a commissioning call; the vendor documents
// multi-minute commissioning latency.
const DefaultCommissionTimeout = 180 * time.Second

// Gateway issues calls against the EXEDRA control platform. It is stateless:
// every operation takes the token and base URL explicitly, so one Gateway
// serves every tenant credential.
type Gateway struct {
	logger  *log.Logger
	client  *http.Client
	timeout time.Duration
}

// NewGateway builds a Gateway. timeout applies to every call except
// commissioning, which supplies its own longer bound, so the deadline goes on
// each request context rather than the client. verifySSL false is for
// development against vendor staging only.
func NewGateway(timeout time.Duration, verifySSL bool, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if !verifySSL {
		logger.Printf("WARNING: EXEDRA SSL verification is disabled")
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Gateway{
		logger:  logger,
		client:  &http.Client{Transport: transport},
		timeout: timeout,
	}
}

// GetControlProgram fetches a control program by ID.
func (g *Gateway) GetControlProgram(ctx context.Context, token, baseURL, programID string) (map[string]any, error) {
	if err := checkArgs(token, baseURL); err != nil {
		return nil, err
	}
	if programID == "" {
		return nil, errors.New("program id cannot be empty")
	}
	return g.doJSON(ctx, "get_control_program", http.MethodGet,
		baseURL+"/api/v1/controlprograms/"+url.PathEscape(programID), token, nil, 0)
}

// UpdateControlProgram replaces a program's commands. The vendor has no
// partial update for control programs, so this is a read-modify-write of the
// whole object: fetch the existing program, keep the fields this system does
// not own, swap in the new commands, PUT it back.
func (g *Gateway) UpdateControlProgram(ctx context.Context, token, baseURL, programID string, commands []Command, assetName string) error {
	if err := checkArgs(token, baseURL); err != nil {
		return err
	}
	if programID == "" {
		return errors.New("program id cannot be empty")
	}

	existing, err := g.GetControlProgram(ctx, token, baseURL, programID)
	if err != nil {
		return fmt.Errorf("retrieve existing program %s: %w", programID, err)
	}

	name := stringOr(existing, "name", "Adaptive Schedule")
	description := stringOr(existing, "description", "Adaptive lighting schedule")
	if assetName != "" {
		name = fmt.Sprintf("Adaptive Schedule (%s)", assetName)
		description = fmt.Sprintf("Adaptive lighting schedule for %s", assetName)
	}

	payload := map[string]any{
		"id":                   programID,
		"name":                 name,
		"description":          description,
		"color":                stringOr(existing, "color", "#f7f67e"),
		"commands":             commands,
		"isTemplate":           valueOr(existing, "isTemplate", false),
		"category":             existing["category"],
		"type":                 stringOr(existing, "type", "control"),
		"onOff":                valueOr(existing, "onOff", false),
		"midnightMidnight":     valueOr(existing, "midnightMidnight", false),
		"resourceTemplateInfo": existing["resourceTemplateInfo"],
		"tenant":               stringOr(existing, "tenant", "hyperion"),
	}

	_, err = g.doJSON(ctx, "update_control_program", http.MethodPut,
		baseURL+"/api/v1/controlprograms/"+url.PathEscape(programID), token, payload, 0)
	return err
}

// SendDeviceCommand issues one command to a device. Level bounds are only
// enforced for setDimmingLevel; other command types pass through untouched.
func (g *Gateway) SendDeviceCommand(ctx context.Context, token, baseURL, deviceID, command string, level int, durationSec *int) (map[string]any, error) {
	if err := checkArgs(token, baseURL); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}
	if command == CommandSetDimmingLevel && (level < 0 || level > 100) {
		return nil, fmt.Errorf("level must be between 0 and 100, got %d", level)
	}

	payload := map[string]any{
		"id":      deviceID,
		"command": command,
		"level":   level,
	}
	if durationSec != nil {
		payload["duration"] = *durationSec
	}

	return g.doJSON(ctx, "send_device_command", http.MethodPut,
		baseURL+"/api/v1/devices/"+url.PathEscape(deviceID)+"/command", token, payload, 0)
}

// GetDeviceDimmingLevel reads a device's current dimming level. refresh is a
// vendor placeholder that currently changes nothing on their side.
func (g *Gateway) GetDeviceDimmingLevel(ctx context.Context, token, baseURL, deviceID string, refresh bool) (map[string]any, error) {
	if err := checkArgs(token, baseURL); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}
	endpoint := baseURL + "/api/v1/devices/" + url.PathEscape(deviceID) + "/dimming-level"
	if refresh {
		endpoint += "?refresh=true"
	}
	return g.doJSON(ctx, "get_device_dimming_level", http.MethodGet, endpoint, token, nil, 0)
}

// CommissionDevice asks the vendor to commission a device. 200, 201 and 202
// all count as success; 202 means the vendor accepted the job and will finish
// it asynchronously.
func (g *Gateway) CommissionDevice(ctx context.Context, token, baseURL, deviceID string, data map[string]any, timeout time.Duration) (map[string]any, error) {
	if err := checkArgs(token, baseURL); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultCommissionTimeout
	}
	if data == nil {
		data = map[string]any{}
	}
	return g.doJSON(ctx, "commission_device", http.MethodPost,
		baseURL+"/api/v1/devices/"+url.PathEscape(deviceID)+"/commission", token, data, timeout)
}

// GetDeviceSchedule reads a device's calendar. The device id doubles as the
// calendar id; that mapping comes from the current vendor provisioning and is
// assumed, not verified.
func (g *Gateway) GetDeviceSchedule(ctx context.Context, token, baseURL, deviceID string) (map[string]any, error) {
	if err := checkArgs(token, baseURL); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}
	return g.doJSON(ctx, "get_device_schedule", http.MethodGet,
		baseURL+"/api/v1/calendars/"+url.PathEscape(deviceID), token, nil, 0)
}

// doJSON runs one vendor call. A non-zero timeout overrides the gateway
// default. Success is any 2xx.
func (g *Gateway) doJSON(ctx context.Context, op, method, endpoint, token string, payload any, timeout time.Duration) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newTransportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(op, resp.StatusCode, respBody)
	}

	if len(respBody) == 0 {
		return map[string]any{}, nil
	}
	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		// Some vendor endpoints answer with bare text on success.
		return map[string]any{"raw": string(respBody)}, nil
	}
	return result, nil
}

func checkArgs(token, baseURL string) error {
	if token == "" {
		return errors.New("exedra token cannot be empty")
	}
	if baseURL == "" {
		return errors.New("exedra base url cannot be empty")
	}
	return nil
}

func stringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func valueOr(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return fallback
}
