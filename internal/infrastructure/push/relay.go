package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RelaySender is the cross-platform universal relay. It POSTs
// {to, title, body, data, sound, channelId} as JSON and reads a per-token
// status back. It supports every platform and serves as the fallback when
// the native relay has no application configured for a token's platform.
type RelaySender struct {
	url    string
	client *http.Client
}

func NewRelaySender(url string) *RelaySender {
	return &RelaySender{url: url, client: &http.Client{}}
}

func (s *RelaySender) Supports(string) bool { return true }

type relayRequest struct {
	To        string            `json:"to"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound"`
	ChannelID string            `json:"channelId"`
}

type relayResponse struct {
	Data struct {
		Status  string `json:"status"` // "ok" | "error"
		Message string `json:"message"`
		Details struct {
			Error string `json:"error"` // e.g. "DeviceNotRegistered"
		} `json:"details"`
	} `json:"data"`
}

func (s *RelaySender) Send(ctx context.Context, msg Message) (Outcome, error) {
	body, err := json.Marshal(relayRequest{
		To:        msg.Token,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		Sound:     msg.Sound,
		ChannelID: msg.ChannelID,
	})
	if err != nil {
		return OutcomePermanent, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return OutcomePermanent, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors and context timeouts are retryable.
		return OutcomeTransient, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return OutcomeTransient, fmt.Errorf("relay returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return OutcomePermanent, fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	var rr relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return OutcomeTransient, fmt.Errorf("decode relay response: %w", err)
	}
	if rr.Data.Status == "ok" {
		return OutcomeDelivered, nil
	}
	if rr.Data.Details.Error == "DeviceNotRegistered" {
		return OutcomeInvalidToken, fmt.Errorf("relay: %s", rr.Data.Message)
	}
	return OutcomePermanent, fmt.Errorf("relay: %s", rr.Data.Message)
}
