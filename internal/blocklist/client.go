// Package blocklist implements the default BlocklistClient: an HTTP/JSON
// POST to the enforcement endpoint, plus a dry-run client that sends
// nothing over the network but still lets the Alerter's ledger semantics
// hold.
package blocklist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// payload is the enforcement endpoint's expected wire shape: realert is
// serialized as the literal string "true"/"false", not a JSON boolean.
type payload struct {
	Key       string `json:"key"`
	BlockTime int    `json:"block_time"`
	Realert   string `json:"realert"`
}

// Client posts block requests to a fixed URL with a bounded per-request
// timeout so a stalled enforcement endpoint cannot indefinitely block the
// Alerter's queue.
type Client struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
}

// New returns a Client posting to url with the given per-request timeout.
func New(url string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Post implements alert.BlocklistClient. HTTP status 2xx is success; any
// other status or transport error is a failure.
func (c *Client) Post(ctx context.Context, key string, blockSeconds int, realert bool) error {
	body, err := json.Marshal(payload{
		Key:       key,
		BlockTime: blockSeconds,
		Realert:   boolString(realert),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blocklist endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// DryRunClient stands in for a Client and never performs the network call,
// reporting success unconditionally so the caller's ledger bookkeeping
// proceeds exactly as it would on a real post.
type DryRunClient struct {
	log zerolog.Logger
}

// NewDryRun returns a DryRunClient.
func NewDryRun(log zerolog.Logger) *DryRunClient {
	return &DryRunClient{log: log}
}

// Post never touches the network; it logs what would have been sent.
func (d *DryRunClient) Post(_ context.Context, key string, blockSeconds int, realert bool) error {
	d.log.Info().
		Str("key", key).
		Int("block_time", blockSeconds).
		Bool("realert", realert).
		Msg("dry-run: alert not posted")
	return nil
}
