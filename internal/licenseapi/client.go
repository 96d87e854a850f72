package licenseapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "droppy/internal/errors"
	"droppy/internal/infrastructure"
	"droppy/internal/security"
)

// VerifyResponse is the license verification API response envelope
type VerifyResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Purchase *Purchase `json:"purchase,omitempty"`
}

// Purchase describes the purchase record attached to a license key
type Purchase struct {
	Email               string `json:"email,omitempty"`
	Uses                int    `json:"uses,omitempty"`
	Refunded            bool   `json:"refunded,omitempty"`
	Disputed            bool   `json:"disputed,omitempty"`
	Chargebacked        bool   `json:"chargebacked,omitempty"`
	SubscriptionEndedAt string `json:"subscription_ended_at,omitempty"`
}

// IsValidPurchase reports whether the response describes a purchase in good
// standing: verified, not refunded/disputed/charged back, and not a lapsed
// subscription.
func (r *VerifyResponse) IsValidPurchase() bool {
	if !r.Success || r.Purchase == nil {
		return false
	}
	p := r.Purchase
	return !p.Refunded && !p.Disputed && !p.Chargebacked && p.SubscriptionEndedAt == ""
}

// Config holds the client configuration
type Config struct {
	Endpoint         string
	ProductID        string
	ProductPermalink string
	Timeout          time.Duration
}

// Client implements the seat-claim protocol against the license
// verification API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a license verification client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "license_client")),
	}
}

// Verify calls the verification endpoint. increment claims a seat,
// decrement releases one; both false is a read-only check.
func (c *Client) Verify(ctx context.Context, licenseKey string, increment, decrement bool) (*VerifyResponse, error) {
	form := url.Values{}
	form.Set("license_key", licenseKey)
	form.Set("increment_uses_count", boolString(increment))
	if decrement {
		form.Set("decrement_uses_count", "true")
	}
	if c.cfg.ProductID != "" {
		form.Set("product_id", c.cfg.ProductID)
	} else {
		form.Set("product_permalink", c.cfg.ProductPermalink)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "license verification request failed",
			slog.String("license_key_masked", security.MaskLicenseKey(licenseKey)),
			slog.Bool("increment", increment),
			slog.Bool("decrement", decrement),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", apperrors.ErrNetwork, err)
	}

	// 5xx is a server fault even when the body parses
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", apperrors.ErrServer, resp.StatusCode)
	}

	var verify VerifyResponse
	if err := json.Unmarshal(body, &verify); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", apperrors.ErrServer, err)
	}

	uses := -1
	if verify.Purchase != nil {
		uses = verify.Purchase.Uses
	}
	c.logger.DebugContext(ctx, "license verification completed",
		slog.String("license_key_masked", security.MaskLicenseKey(licenseKey)),
		slog.Bool("increment", increment),
		slog.Bool("decrement", decrement),
		slog.Bool("success", verify.Success),
		slog.Int("uses", uses),
		slog.Duration("duration", time.Since(start)),
	)

	return &verify, nil
}

// ClaimToken represents a successfully claimed seat that can be released
// if a later check invalidates the claim.
type ClaimToken struct {
	client      *Client
	licenseKey  string
	Response    *VerifyResponse
	compensated bool
}

// Claim performs the side-effecting verification step: it increments the
// server's uses counter. Callers that abandon the claim for any reason must
// call Compensate before returning.
func (c *Client) Claim(ctx context.Context, licenseKey string) (*ClaimToken, error) {
	resp, err := c.Verify(ctx, licenseKey, true, false)
	if err != nil {
		return nil, err
	}
	return &ClaimToken{client: c, licenseKey: licenseKey, Response: resp}, nil
}

// Compensate releases the claimed seat by decrementing the uses counter.
// Idempotent per token.
func (t *ClaimToken) Compensate(ctx context.Context) error {
	if t.compensated {
		return nil
	}
	_, err := t.client.Verify(ctx, t.licenseKey, false, true)
	if err != nil {
		t.client.logger.ErrorContext(ctx, "seat compensation failed",
			slog.String("license_key_masked", security.MaskLicenseKey(t.licenseKey)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to release claimed seat: %w", err)
	}
	t.compensated = true
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
