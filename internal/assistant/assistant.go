// Package assistant is the transport-only client for the LLM endpoint that
// turns free-form chat into wallet commands. The model is expected to answer
// with a JSON intent; everything linguistic lives behind the HTTP boundary.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Intent is the structured command the LLM endpoint answers with.
type Intent struct {
	Action  string `json:"action"`
	To      string `json:"to,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Network string `json:"network,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

const (
	ActionTransfer = "transfer"
	ActionBalance  = "balance"
	ActionHistory  = "history"
	ActionChat     = "chat"
)

func NewClient(endpoint string) *client {
	return &client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 20 * time.Second},
	}
}

type client struct {
	endpoint string
	httpc    *http.Client
}

type chatRequest struct {
	Message string `json:"message"`
}

// Parse posts the user's message and decodes the intent. Unknown or missing
// actions degrade to a plain chat reply rather than an error, so a chatty
// model never breaks the endpoint.
func (c *client) Parse(ctx context.Context, message string) (Intent, error) {
	if c.endpoint == "" {
		return Intent{}, errors.New("no LLM endpoint configured")
	}

	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return Intent{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Intent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Intent{}, fmt.Errorf("LLM endpoint returned %s", resp.Status)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return Intent{}, fmt.Errorf("decoding LLM reply: %w", err)
	}

	switch strings.ToLower(intent.Action) {
	case ActionTransfer, ActionBalance, ActionHistory:
		intent.Action = strings.ToLower(intent.Action)
	default:
		intent.Action = ActionChat
	}
	return intent, nil
}
