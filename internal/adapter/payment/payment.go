package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
)

const (
	requestTimeout = 15 * time.Second
)

// httpVerifier asks the external payment provider whether a checkout session
// is paid and what it bought. The call is a blocking round trip; the caller's
// context cancels it.
type httpVerifier struct {
	client *http.Client
	url    string
	log    *slog.Logger
}

func NewHTTPVerifier(url string, log *slog.Logger) *httpVerifier {
	return &httpVerifier{
		client: &http.Client{Timeout: requestTimeout},
		url:    url,
		log:    log.With(slog.String("item", "PaymentVerifier")),
	}
}

func (v *httpVerifier) Verify(ctx context.Context, sessionID string) (*entity.Entitlement, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot verify payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: verifier status %d", common.ErrPaymentNotConfirmed, resp.StatusCode)
	}

	var out struct {
		Paid          bool     `json:"paid"`
		ProductIDs    []string `json:"purchased_entity_ids"`
		CustomerEmail string   `json:"customer_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode verify response: %w", err)
	}

	if !out.Paid {
		return nil, fmt.Errorf("session not paid: %w", common.ErrPaymentNotConfirmed)
	}

	return &entity.Entitlement{
		SessionID:     sessionID,
		ProductIDs:    out.ProductIDs,
		CustomerEmail: out.CustomerEmail,
	}, nil
}
