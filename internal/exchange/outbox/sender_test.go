package outbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/shared"
)

func hubMessage() Message {
	return Message{
		ID:          uuid.New(),
		TargetParty: "5790000000001",
		MessageType: "SettlementNotice",
		Payload:     []byte(`{"net_total":"225.00 DKK"}`),
		Status:      StatusSending,
		CreatedAt:   time.Now(),
	}
}

func TestHTTPSenderDeliversPayload(t *testing.T) {
	var gotType, gotParty string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Message-Type")
		gotParty = r.Header.Get("X-Target-Party")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, srv.Client())
	err := sender.Send(context.Background(), hubMessage())
	require.NoError(t, err)
	require.Equal(t, "SettlementNotice", gotType)
	require.Equal(t, "5790000000001", gotParty)
}

func TestHTTPSenderClassifiesRejectionAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, srv.Client())
	err := sender.Send(context.Background(), hubMessage())
	require.ErrorIs(t, err, shared.ErrPermanent)
	require.Contains(t, err.Error(), "unknown recipient")
}

func TestHTTPSenderClassifiesOutageAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, srv.Client())
	err := sender.Send(context.Background(), hubMessage())
	require.ErrorIs(t, err, shared.ErrTransient)
}

func TestHTTPSenderClassifiesNetworkErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sender := NewHTTPSender(srv.URL, nil)
	err := sender.Send(context.Background(), hubMessage())
	require.ErrorIs(t, err, shared.ErrTransient)
}
