package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

// Sender posts payloads to the webhook URL on the agent's profile.
type Sender struct {
	store      store.Store
	httpClient *http.Client
}

func NewSender(st store.Store, timeout time.Duration) *Sender {
	return &Sender{
		store:      st,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Deliver returns nil without sending when the agent has no webhook configured.
func (s *Sender) Deliver(ctx context.Context, agentID uuid.UUID, p Payload) error {
	var agent *models.Agent
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		agent, err = tx.GetAgent(ctx, agentID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up webhook: %w", err)
	}
	if agent.WebhookURL == nil || *agent.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *agent.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(p.Event))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling agent webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent webhook returned status %d", resp.StatusCode)
	}
	return nil
}
