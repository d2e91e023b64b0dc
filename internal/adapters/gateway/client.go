// Package gateway implements ports.Gateway against the external SMS
// provider's HTTP API.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bulk-sms-dispatch/internal/domain"
	"bulk-sms-dispatch/internal/ports"
)

// The gateway signals acceptance with this status token. A 200 response
// carrying any other token is a business-level rejection.
const affirmativeStatus = "OK"

// Config carries everything the client needs. Injected explicitly; the
// client reads no environment of its own.
type Config struct {
	SendURL    string
	BulkURL    string
	ReportURLs []string // candidate reporting endpoints, tried in order
	User       string
	Pass       string
	Insecure   bool // skip TLS verification, non-production only
	Timeout    time.Duration

	Coding         string // bulk message coding, gateway default when empty
	ValidityPeriod int    // minutes the gateway keeps retrying delivery
}

// Client implements ports.Gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a Client from an explicit Config.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Coding == "" {
		cfg.Coding = "default"
	}
	if cfg.ValidityPeriod == 0 {
		cfg.ValidityPeriod = 1440
	}

	transport := http.DefaultTransport
	if cfg.Insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log: log,
	}
}

type singleSendRequest struct {
	User    string   `json:"User"`
	Pass    string   `json:"Pass"`
	Message string   `json:"Message"`
	Numbers []string `json:"Numbers"`
}

type bulkMessage struct {
	Message string `json:"Message"`
	GSM     string `json:"GSM"`
}

type bulkSendRequest struct {
	User           string        `json:"User"`
	Pass           string        `json:"Pass"`
	Coding         string        `json:"Coding"`
	ValidityPeriod int           `json:"ValidityPeriod"`
	Messages       []bulkMessage `json:"Messages"`
}

// SendOne submits a single message. Gateway rejections come back as
// unsuccessful outcomes, not errors; the reason prefix tells transport
// trouble apart from a gateway decline.
func (c *Client) SendOne(ctx context.Context, to domain.PhoneNumber, message string) domain.SendOutcome {
	out := domain.SendOutcome{Recipient: to}

	payload := singleSendRequest{
		User:    c.cfg.User,
		Pass:    c.cfg.Pass,
		Message: message,
		Numbers: []string{string(to)},
	}

	var resp sendResponse
	if err := c.postJSON(ctx, c.cfg.SendURL, payload, &resp); err != nil {
		out.ErrorReason = fmt.Sprintf("%s: %v", domain.ReasonGatewayUnreachable, err)
		return out
	}

	// Success requires the affirmative token AND a positive message id.
	// Some providers return 200 with embedded business errors; a zero or
	// absent id unmasks those.
	if !resp.affirmative() || resp.MessageID <= 0 {
		out.ErrorReason = fmt.Sprintf("%s: status=%q id=%d",
			domain.ReasonGatewayRejected, resp.Status, resp.MessageID)
		return out
	}

	out.Success = true
	out.ProviderMessageID = strconv.FormatInt(resp.MessageID, 10)
	return out
}

// SendBulk submits one message to all recipients in the gateway's native
// multi-recipient shape. Any rejection or ambiguous response is an error so
// the orchestrator can fall back to individual sends.
func (c *Client) SendBulk(ctx context.Context, to []domain.PhoneNumber, message string) (ports.BulkResult, error) {
	msgs := make([]bulkMessage, 0, len(to))
	for _, p := range to {
		msgs = append(msgs, bulkMessage{Message: message, GSM: string(p)})
	}

	payload := bulkSendRequest{
		User:           c.cfg.User,
		Pass:           c.cfg.Pass,
		Coding:         c.cfg.Coding,
		ValidityPeriod: c.cfg.ValidityPeriod,
		Messages:       msgs,
	}

	var resp sendResponse
	if err := c.postJSON(ctx, c.cfg.BulkURL, payload, &resp); err != nil {
		return ports.BulkResult{}, fmt.Errorf("bulk send: %w", err)
	}

	ids := resp.messageIDs()
	if !resp.affirmative() || len(ids) == 0 {
		return ports.BulkResult{}, fmt.Errorf("bulk send rejected: status=%q ids=%d", resp.Status, len(ids))
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return ports.BulkResult{MessageIDs: out}, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
