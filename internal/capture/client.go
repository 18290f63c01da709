package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"weighbridge-service/internal/config"
)

// Client asks the camera subsystem to photograph all devices at once. It
// implements service.Capturer; failures surface as an error plus an empty
// list, never as a panic into the weighing cycle.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.CameraConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type captureRequest struct {
	Reason string `json:"reason"`
	Model  string `json:"model,omitempty"`
}

type captureResponse struct {
	Files []string `json:"files"`
}

func (c *Client) CaptureAll(ctx context.Context, reason string) ([]string, error) {
	if c.baseURL == "" {
		c.log.Debug().Str("reason", reason).Msg("no camera configured, skipping capture")
		return nil, nil
	}

	body, err := json.Marshal(captureRequest{Reason: reason, Model: c.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/capture", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture request: unexpected status %d", resp.StatusCode)
	}

	var out captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("capture response: %w", err)
	}
	c.log.Debug().Str("reason", reason).Int("files", len(out.Files)).Msg("capture completed")
	return out.Files, nil
}
