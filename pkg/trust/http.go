package trust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const substrateTimeout = 10 * time.Second

// HTTPSubstrate talks to a trust substrate gateway over HTTP.
type HTTPSubstrate struct {
	baseURL string
	hotkey  string
	client  *http.Client
}

// NewHTTPSubstrate creates a substrate client for the gateway at baseURL.
func NewHTTPSubstrate(baseURL, hotkey string) *HTTPSubstrate {
	return &HTTPSubstrate{
		baseURL: baseURL,
		hotkey:  hotkey,
		client:  &http.Client{Timeout: substrateTimeout},
	}
}

// Identity implements IdentityAndEmit.
func (s *HTTPSubstrate) Identity() string { return s.hotkey }

// CurrentBlock implements IdentityAndEmit.
func (s *HTTPSubstrate) CurrentBlock(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/block", nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("substrate returned %d for block query", resp.StatusCode)
	}

	var body struct {
		Block uint64 `json:"block"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode block response: %w", err)
	}
	return body.Block, nil
}

// SetWeights implements IdentityAndEmit.
func (s *HTTPSubstrate) SetWeights(ctx context.Context, weights map[string]float64) error {
	payload, err := json.Marshal(struct {
		Hotkey  string             `json:"hotkey"`
		Weights map[string]float64 `json:"weights"`
	}{Hotkey: s.hotkey, Weights: weights})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/weights", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("substrate rejected weights with status %d", resp.StatusCode)
	}
	return nil
}

// Ping implements IdentityAndEmit.
func (s *HTTPSubstrate) Ping(ctx context.Context) error {
	_, err := s.CurrentBlock(ctx)
	return err
}
