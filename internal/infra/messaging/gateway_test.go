package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"patient_recommender/internal/domain/messaging"
	"patient_recommender/internal/infra/httpclient"

	"github.com/stretchr/testify/require"
)

func TestSendRoutesByDestination(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Path)
		var msg messaging.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		require.Equal(t, "p-1", msg.IdentityKey)
		require.Equal(t, "recommendLib", msg.SenderID)
		w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	g := New(httpclient.New("gateway", srv.URL, time.Second))
	msg := messaging.Message{IdentityKey: "p-1", Body: "hello", MessageID: "m-1", SenderID: "recommendLib", ReceiverDeviceType: "mobile"}

	code, err := g.Send(context.Background(), msg, messaging.DestinationPatient)
	require.NoError(t, err)
	require.Equal(t, messaging.CodeAccepted, code)

	msg.ReceiverDeviceType = "web"
	_, err = g.Send(context.Background(), msg, messaging.DestinationProfessional)
	require.NoError(t, err)

	require.Equal(t, []string{paths[messaging.DestinationPatient], paths[messaging.DestinationProfessional]}, got)
}

func TestSendReadsCode(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{"numeric body code", http.StatusOK, `{"code":1007}`, messaging.CodeUnknownPatient},
		{"string body code", http.StatusOK, `{"code":"1048","message":"queue"}`, messaging.CodeQueueNotFound},
		{"plain status", http.StatusOK, `accepted`, http.StatusOK},
		{"client error status", http.StatusBadRequest, `{}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			code, err := New(httpclient.New("gateway", srv.URL, time.Second)).Send(context.Background(), messaging.Message{}, messaging.DestinationPatient)
			require.NoError(t, err)
			require.Equal(t, tc.want, code)
		})
	}
}

func TestSendUnknownDestination(t *testing.T) {
	g := New(httpclient.New("gateway", "http://127.0.0.1:0", time.Second))
	_, err := g.Send(context.Background(), messaging.Message{}, messaging.Destination("family"))
	require.Error(t, err)
}

func TestSendDoesNotRetryFailedDelivery(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hc := httpclient.New("gateway", srv.URL, time.Second,
		httpclient.WithRetries(2),
		httpclient.WithBackoff(time.Millisecond),
	)
	_, err := New(hc).Send(context.Background(), messaging.Message{IdentityKey: "p-1"}, messaging.DestinationPatient)
	require.ErrorIs(t, err, httpclient.ErrUpstreamUnavailable)
	require.Equal(t, int32(1), hits.Load())
}
