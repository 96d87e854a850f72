package trialapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "droppy/internal/errors"
	"droppy/internal/infrastructure"
)

// Actions accepted by the trial entitlement service
const (
	ActionStart  = "start"
	ActionStatus = "status"
)

// Request is the JSON body sent to the trial service. The account hash is
// a SHA-256 of the normalized email; the raw address never leaves the
// machine.
type Request struct {
	DeviceID    string `json:"device_id"`
	AccountHash string `json:"account_hash"`
	AppBundleID string `json:"app_bundle_id"`
	AppVersion  string `json:"app_version"`
}

// Response is the trial service's view of this installation's trial
type Response struct {
	Eligible  *bool    `json:"eligible,omitempty"`
	Active    bool     `json:"active"`
	Consumed  bool     `json:"consumed"`
	StartedAt FlexTime `json:"started_at"`
	ExpiresAt FlexTime `json:"expires_at"`
	ServerNow FlexTime `json:"server_now"`
	Message   string   `json:"message,omitempty"`
}

// IsEligible treats an absent eligible field as eligible
func (r *Response) IsEligible() bool {
	return r.Eligible == nil || *r.Eligible
}

// Config holds the trial client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	AppBundleID string
	AppVersion  string
	Timeout     time.Duration
}

// Client talks to the optional server-authoritative trial service
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a trial entitlement client
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
		logger: logger.With(slog.String("component", "trial_client")),
	}
}

// Request performs a trial sync call. action is ActionStart or ActionStatus.
func (c *Client) Request(ctx context.Context, action, deviceID, accountHash string) (*Response, error) {
	body, err := json.Marshal(Request{
		DeviceID:    deviceID,
		AccountHash: accountHash,
		AppBundleID: c.cfg.AppBundleID,
		AppVersion:  c.cfg.AppVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trial request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build trial request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "trial sync request failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read trial response: %v", apperrors.ErrNetwork, err)
	}

	// Non-2xx is an error even when the body parses
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: trial service status %d", apperrors.ErrServer, resp.StatusCode)
	}

	var trial Response
	if err := json.Unmarshal(data, &trial); err != nil {
		return nil, fmt.Errorf("%w: malformed trial response: %v", apperrors.ErrServer, err)
	}

	c.logger.DebugContext(ctx, "trial sync completed",
		slog.String("action", action),
		slog.Bool("active", trial.Active),
		slog.Bool("consumed", trial.Consumed),
		slog.Duration("duration", time.Since(start)),
	)

	return &trial, nil
}
