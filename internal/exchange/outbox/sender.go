package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridline-energy/gridline/internal/shared"
)

// HTTPSender delivers outbound messages to the market hub over HTTP.
// 4xx responses are permanent rejections, anything else transient.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender constructs the sender.
func NewHTTPSender(endpoint string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSender{endpoint: endpoint, client: client}
}

// Send posts one message to the hub.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(msg.Payload))
	if err != nil {
		return shared.Permanentf("build hub request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-Id", msg.ID.String())
	req.Header.Set("X-Message-Type", msg.MessageType)
	req.Header.Set("X-Target-Party", msg.TargetParty)

	resp, err := s.client.Do(req)
	if err != nil {
		return shared.Transientf("hub request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("hub responded %d: %s", resp.StatusCode, string(body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return shared.Permanentf("%s", detail)
	}
	return shared.Transientf("%s", detail)
}
