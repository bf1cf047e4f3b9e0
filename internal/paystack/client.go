// Package paystack talks to the Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.paystack.co"

// Client implements funding.Gateway against the Paystack API.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL, secret string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type initializeRequest struct {
	Email    string            `json:"email"`
	Amount   string            `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// InitializeCharge opens a hosted checkout for req.Amount kobo.
func (c *Client) InitializeCharge(ctx context.Context, req funding.ChargeRequest) (funding.Session, error) {
	payload, err := json.Marshal(initializeRequest{
		Email:    req.Email,
		Amount:   strconv.FormatInt(req.Amount.Int64(), 10),
		Metadata: req.Metadata,
	})
	if err != nil {
		return funding.Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return funding.Session{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return funding.Session{}, fmt.Errorf("initialize transaction: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return funding.Session{}, fmt.Errorf("read initialize response: %w", err)
	}
	var out initializeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return funding.Session{}, fmt.Errorf("decode initialize response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Status {
		c.logger.WarnContext(ctx, "paystack initialize rejected", "status", resp.StatusCode, "message", out.Message)
		return funding.Session{}, fmt.Errorf("initialize transaction: status %d: %s", resp.StatusCode, out.Message)
	}
	if out.Data.Reference == "" || out.Data.AuthorizationURL == "" {
		return funding.Session{}, fmt.Errorf("initialize transaction: incomplete response")
	}

	return funding.Session{
		Reference:        out.Data.Reference,
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
	}, nil
}
