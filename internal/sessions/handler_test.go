package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/internal/fees"
	"github.com/parkwise/parkwise/internal/platform/httpx"
	"github.com/parkwise/parkwise/internal/shared"
)

type memoryKeys struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (k *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seen == nil {
		k.seen = make(map[string]bool)
	}
	if k.seen[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+"/"+key] = true
	return nil
}

func (k *memoryKeys) Delete(ctx context.Context, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.seen, module+"/"+key)
	return nil
}

func newTestRouter(f *fixture, keys httpx.IdempotencyKeys) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/sessions", NewHandler(nil, f.svc, keys).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEntryAndExit(t *testing.T) {
	f := newFixture(fees.Options{})
	h := newTestRouter(f, &memoryKeys{})

	rec := do(t, h, http.MethodPost, "/api/sessions", `{"card_uid":"04A1","vehicle_id":10,"operator_id":7}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.Equal(t, StatusInParking, sess.Status)

	rec = do(t, h, http.MethodPost, "/api/sessions", `{"card_id":1,"vehicle_id":10,"operator_id":7}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	f.clock = entryAt.Add(150 * time.Minute)
	rec = do(t, h, http.MethodGet, "/api/sessions/quote/"+sess.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"final_fee":"11"`)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/exit", `{"operator_id":7}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.Equal(t, StatusExited, sess.Status)
	require.Equal(t, "11", sess.FinalFee.Decimal.String())

	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/cancel", `{"operator_id":7}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid State")
}

func TestHandlerValidation(t *testing.T) {
	f := newFixture(fees.Options{})
	h := newTestRouter(f, nil)

	rec := do(t, h, http.MethodPost, "/api/sessions", `{"vehicle_id":10,"operator_id":7}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sessions", `{"card_id":1,`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/not-a-uuid", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	sess := f.enter(t, 1)
	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/exit", `{"operator_id":7,"discount_reason":"SUBSCRIPTION","manual_fee":"1"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000001", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerIdempotentExit(t *testing.T) {
	f := newFixture(fees.Options{})
	keys := &memoryKeys{}
	h := newTestRouter(f, keys)
	sess := f.enter(t, 1)
	f.clock = entryAt.Add(time.Hour)
	header := map[string]string{httpx.IdempotencyHeader: "exit-1"}

	// a failed attempt releases its key
	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/exit", `{"operator_id":8}`, header)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/exit", `{"operator_id":7}`, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/exit", `{"operator_id":7}`, header)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already processed")

	rec = do(t, h, http.MethodGet, "/api/sessions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}
