// ABOUTME: Brevo transactional email and contacts API client
// ABOUTME: JSON over HTTP with an api-key header and client-side request pacing

package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/identity-gateway/internal/assets"
)

// DefaultBrevoBaseURL is Brevo's v3 API root.
const DefaultBrevoBaseURL = "https://api.brevo.com/v3"

// BrevoConfig configures a BrevoClient.
type BrevoConfig struct {
	APIKey            string
	BaseURL           string
	SenderEmail       string
	SenderName        string
	ListID            int
	RequestsPerSecond float64 // zero disables pacing
	Timeout           time.Duration
}

// BrevoClient implements Mailer against the Brevo API.
type BrevoClient struct {
	cfg     BrevoConfig
	http    *http.Client
	limiter *rate.Limiter
}

var _ Mailer = (*BrevoClient)(nil)

// NewBrevoClient creates a client. APIKey is required.
func NewBrevoClient(cfg BrevoConfig) (*BrevoClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("brevo api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBrevoBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SenderName == "" {
		cfg.SenderName = "Web3 Platform"
	}
	if cfg.ListID == 0 {
		cfg.ListID = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &BrevoClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type createContactRequest struct {
	Email         string `json:"email"`
	ListIDs       []int  `json:"listIds"`
	UpdateEnabled bool   `json:"updateEnabled"`
}

type sendEmailRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// APIError is a non-2xx response from Brevo.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("brevo: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("brevo: unexpected status %d", e.StatusCode)
}

// AddContact adds email to the configured list, updating it if it exists.
func (c *BrevoClient) AddContact(ctx context.Context, email string) error {
	return c.post(ctx, "/contacts", createContactRequest{
		Email:         email,
		ListIDs:       []int{c.cfg.ListID},
		UpdateEnabled: true,
	})
}

// SendEmail sends a transactional email to a single recipient.
func (c *BrevoClient) SendEmail(ctx context.Context, to string, email *assets.Email) error {
	return c.post(ctx, "/smtp/email", sendEmailRequest{
		Sender:      brevoAddress{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail},
		To:          []brevoAddress{{Email: to}},
		Subject:     email.Subject,
		HTMLContent: email.HTML,
	})
}

func (c *BrevoClient) post(ctx context.Context, path string, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for brevo rate limit: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding brevo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating brevo request: %w", err)
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling brevo %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return apiErr
}
