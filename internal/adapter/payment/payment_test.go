package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifyPaidSession(t *testing.T) {
	var gotSession string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotSession = req["session_id"]

		json.NewEncoder(w).Encode(map[string]any{
			"paid":                 true,
			"purchased_entity_ids": []string{"dbcat:zgody"},
			"customer_email":       "klient@example.com",
		})
	}))
	defer ts.Close()

	v := NewHTTPVerifier(ts.URL, testLogger())

	ent, err := v.Verify(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", gotSession)
	require.Equal(t, "sess-1", ent.SessionID)
	require.Equal(t, []string{"dbcat:zgody"}, ent.ProductIDs)
	require.Equal(t, "klient@example.com", ent.CustomerEmail)
}

func TestVerifyUnpaidSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"paid": false})
	}))
	defer ts.Close()

	v := NewHTTPVerifier(ts.URL, testLogger())

	_, err := v.Verify(context.Background(), "sess-1")
	require.ErrorIs(t, err, common.ErrPaymentNotConfirmed)
}

func TestVerifyProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	v := NewHTTPVerifier(ts.URL, testLogger())

	_, err := v.Verify(context.Background(), "sess-1")
	require.ErrorIs(t, err, common.ErrPaymentNotConfirmed)
}
