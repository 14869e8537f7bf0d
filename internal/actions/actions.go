// Package actions holds the thin HTTP clients for outbound side effects:
// telephony, transactional email, SMS and arbitrary webhooks. Each client is
// context-aware and reports provider rejections as plain errors; callers
// decide whether that is a business failure or a transport fault.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/argus-vision/argus/config"
)

// Caller places outbound phone calls.
type Caller interface {
	Call(ctx context.Context, to, message, assistantID string) (string, error)
}

// Emailer sends transactional email.
type Emailer interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// Texter sends SMS messages.
type Texter interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// TelephonyClient drives a Vapi-style voice API.
type TelephonyClient struct {
	apiKey      string
	baseURL     string
	assistantID string
	phoneNumber string
	httpClient  *http.Client
}

func NewTelephonyClient(cfg config.TelephonyConfig) *TelephonyClient {
	return &TelephonyClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		assistantID: cfg.AssistantID,
		phoneNumber: cfg.PhoneNumber,
		httpClient:  &http.Client{Timeout: timeoutOr(cfg.Timeout, 30*time.Second)},
	}
}

// Call initiates one outbound call. The returned id identifies the provider
// call record. A non-2xx provider response is an error and is never retried
// here; the caller owns the no-double-dial contract.
func (c *TelephonyClient) Call(ctx context.Context, to, message, assistantID string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("telephony provider not configured")
	}
	if assistantID == "" {
		assistantID = c.assistantID
	}
	payload := map[string]interface{}{
		"assistantId": assistantID,
		"customer":    map[string]string{"number": to},
	}
	if c.phoneNumber != "" {
		payload["phoneNumber"] = map[string]string{"number": c.phoneNumber}
	}
	if message != "" {
		payload["assistantOverrides"] = map[string]interface{}{
			"firstMessage": message,
		}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/call", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *TelephonyClient) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status: %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// EmailClient drives a Resend-style transactional email API.
type EmailClient struct {
	apiKey     string
	baseURL    string
	from       string
	httpClient *http.Client
}

func NewEmailClient(cfg config.EmailConfig) *EmailClient {
	return &EmailClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		from:       cfg.From,
		httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout, 30*time.Second)},
	}
}

// Send delivers one email and returns the provider message id.
func (c *EmailClient) Send(ctx context.Context, to, subject, body string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("email provider not configured")
	}
	payload := map[string]interface{}{
		"from":    c.from,
		"to":      []string{to},
		"subject": subject,
		"text":    body,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status: %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.ID, nil
}

// MessagingClient drives a Twilio-style SMS API (form-encoded).
type MessagingClient struct {
	accountSID string
	authToken  string
	baseURL    string
	from       string
	httpClient *http.Client
}

func NewMessagingClient(cfg config.MessagingConfig) *MessagingClient {
	return &MessagingClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		from:       cfg.From,
		httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout, 30*time.Second)},
	}
}

// SendSMS delivers one text message and returns the provider message sid.
func (c *MessagingClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", fmt.Errorf("messaging provider not configured")
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status: %d", resp.StatusCode)
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.SID, nil
}

// WebhookClient performs arbitrary outbound webhook calls for the
// call_webhook tool.
type WebhookClient struct {
	httpClient *http.Client
}

func NewWebhookClient(cfg config.WebhookConfig) *WebhookClient {
	return &WebhookClient{httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout, 30*time.Second)}}
}

// Do issues the request and returns status code plus a bounded response body.
func (c *WebhookClient) Do(ctx context.Context, target, method string, headers map[string]string, body interface{}) (int, string, error) {
	if method == "" {
		method = "POST"
	}
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, "", fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(snippet), nil
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
