package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/infra/memstore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type stubRounds struct {
	result app.RoundResult
	err    error
	kinds  []app.RoundKind
}

func (s *stubRounds) RunRound(ctx context.Context, kind app.RoundKind) (app.RoundResult, error) {
	s.kinds = append(s.kinds, kind)
	result := s.result
	result.Kind = kind
	return result, s.err
}

type apiFixture struct {
	router *gin.Engine
	store  *memstore.Store
	rounds *stubRounds
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := logtest.NewNullLogger()
	log := logrus.NewEntry(logger)

	store := memstore.New()
	roster, err := app.ParseFixtureRoster("p-1:001,p-2", "000")
	require.NoError(t, err)
	rounds := &stubRounds{}
	h := NewHandler(
		rounds,
		app.NewRosterService(roster, store.Patients(), app.NopRecorder{}, log),
		app.NewNotificationService(store.Notifications(), store.Patients(), app.SystemClock{}, log),
	)
	return &apiFixture{
		router: NewRouter(h, prometheus.NewRegistry(), log),
		store:  store,
		rounds: rounds,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var payload Response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

// dataAs re-decodes the generic data field into out.
func dataAs(t *testing.T, payload Response, out any) {
	t.Helper()
	data, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func (f *apiFixture) seed(t *testing.T, sentAt time.Time) string {
	t.Helper()
	ctx := context.Background()
	p, _, err := f.store.Patients().Upsert(ctx, "p-1", "001")
	require.NoError(t, err)
	n := &notification.Notification{
		ID:      "6f1c5a8e-1f7e-4c1a-9a57-1d1f4c1e2b3a",
		Message: "Time for a short walk",
		Channel: notification.ChannelMobile,
		Kind:    notification.KindPAR,
		SentAt:  sentAt,
	}
	p.Append(n)
	require.NoError(t, f.store.Patients().Save(ctx, p))
	return n.ID
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t)
	rec, payload := f.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, payload.Success)
}

func TestRunRound(t *testing.T) {
	f := newAPIFixture(t)
	f.rounds.result = app.RoundResult{Processed: 2, Notified: 1, Failed: 1}
	f.rounds.err = notification.ErrNotFound

	rec, payload := f.do(t, http.MethodPost, "/rounds/ipaq_check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result app.RoundResult
	dataAs(t, payload, &result)
	require.Equal(t, app.RoundIPAQCheck, result.Kind)
	require.Equal(t, 1, result.Failed)

	rec, payload = f.do(t, http.MethodPost, "/rounds/weekly", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeUnknownRoundKind, payload.Error.Code)

	f.rounds.result = app.RoundResult{}
	f.rounds.err = app.ErrRoundInProgress
	rec, payload = f.do(t, http.MethodPost, "/rounds/par", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, CodeRoundInProgress, payload.Error.Code)
	require.Len(t, f.rounds.kinds, 2)
}

func TestRosterEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec, payload := f.do(t, http.MethodPost, "/patients/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var synced app.SyncResult
	dataAs(t, payload, &synced)
	require.Equal(t, 2, synced.Created)

	rec, payload = f.do(t, http.MethodGet, "/patients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var patients []patientView
	dataAs(t, payload, &patients)
	require.Len(t, patients, 2)
	require.Equal(t, "001", patients[0].OrganizationCode)
	require.True(t, patients[1].Active)

	rec, payload = f.do(t, http.MethodPost, "/patients/p-2/reenroll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reenrolled patientView
	dataAs(t, payload, &reenrolled)
	require.Equal(t, 0, reenrolled.ParDay)

	rec, payload = f.do(t, http.MethodPost, "/patients/ghost/reenroll", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, CodeNotFound, payload.Error.Code)
}

func TestReadReceipt(t *testing.T) {
	f := newAPIFixture(t)
	id := f.seed(t, time.Now().Add(-time.Hour))

	rec, payload := f.do(t, http.MethodPost, "/notifications/read", map[string]string{"id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	var first notification.Projection
	dataAs(t, payload, &first)
	require.True(t, first.Read)
	require.NotNil(t, first.ReadAt)

	_, payload = f.do(t, http.MethodPost, "/notifications/read", map[string]string{"id": id})
	var second notification.Projection
	dataAs(t, payload, &second)
	require.True(t, first.ReadAt.Equal(*second.ReadAt))

	rec, payload = f.do(t, http.MethodPost, "/notifications/read", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeBadRequest, payload.Error.Code)

	rec, payload = f.do(t, http.MethodPost, "/notifications/read", map[string]string{"id": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, CodeNotFound, payload.Error.Code)
}

func TestGetNotification(t *testing.T) {
	f := newAPIFixture(t)
	id := f.seed(t, time.Now())

	rec, payload := f.do(t, http.MethodGet, "/notifications/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got notification.Projection
	dataAs(t, payload, &got)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Time for a short walk", got.Message)
	require.Equal(t, notification.ChannelMobile, got.Channel)
	require.False(t, got.Read)

	rec, _ = f.do(t, http.MethodGet, "/notifications/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newAPIFixture(t)
	sent := time.Date(2024, 3, 5, 15, 0, 0, 0, time.Local)
	f.seed(t, sent)

	body := map[string]string{"patient_reference": "p-1", "start_date": "2024-03-05", "end_date": "2024-03-05"}
	rec, payload := f.do(t, http.MethodPost, "/notifications/history", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []notification.Projection
	dataAs(t, payload, &history)
	require.Len(t, history, 1)

	body["start_date"] = "2024-03-06"
	body["end_date"] = "2024-03-07"
	_, payload = f.do(t, http.MethodPost, "/notifications/history", body)
	dataAs(t, payload, &history)
	require.Empty(t, history)

	body["end_date"] = "2024-03-01"
	rec, payload = f.do(t, http.MethodPost, "/notifications/history", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeBadRequest, payload.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/notifications/history", map[string]string{"patient_reference": "p-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/notifications/history", map[string]string{
		"patient_reference": "p-1", "start_date": "05-03-2024", "end_date": "2024-03-05",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = f.do(t, http.MethodPost, "/notifications/history", map[string]string{
		"patient_reference": "ghost", "start_date": "2024-03-05", "end_date": "2024-03-05",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, CodeNotFound, payload.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
