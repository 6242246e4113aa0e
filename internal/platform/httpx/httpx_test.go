package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: card", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: dup", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: closed", shared.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: negative", shared.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: eof", ErrMalformedBody), http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, tc.status, StatusFor(tc.err))
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
	require.Equal(t, http.StatusOK, StatusFor(nil))
}

type sampleRequest struct {
	CardID int64 `json:"card_id" validate:"required,gt=0"`
}

func TestDecodeJSON(t *testing.T) {
	var req sampleRequest
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"card_id":3}`)), &req)
	require.NoError(t, err)
	require.Equal(t, int64(3), req.CardID)

	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"card":3}`)), &req)
	require.ErrorIs(t, err, ErrMalformedBody)

	req = sampleRequest{}
	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"card_id":0}`)), &req)
	require.Error(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	require.Contains(t, rec.Body.String(), `"CardID":"failed on required"`)
}

func TestParams(t *testing.T) {
	r := chi.NewRouter()
	var gotID int64
	var gotErr error
	r.Get("/cards/{id}", func(w http.ResponseWriter, req *http.Request) {
		gotID, gotErr = PathInt64(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cards/12", nil))
	require.NoError(t, gotErr)
	require.Equal(t, int64(12), gotID)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cards/-1", nil))
	require.ErrorIs(t, gotErr, shared.ErrValidation)

	def := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/?at=2026-04-01T10:00:00Z&n=x&m=7", nil)
	at, err := QueryTime(req, "at", def)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), at.UTC())

	at, err = QueryTime(req, "missing", def)
	require.NoError(t, err)
	require.Equal(t, def, at)

	_, err = QueryInt64(req, "n")
	require.ErrorIs(t, err, shared.ErrValidation)
	n, err := QueryInt64(req, "m")
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}

type memoryKeys struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (m *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.claimed[module+key] = true
	return nil
}

func (m *memoryKeys) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, module+key)
	return nil
}

func TestIdempotentMiddleware(t *testing.T) {
	keys := &memoryKeys{claimed: map[string]bool{}}
	status := http.StatusOK
	calls := 0
	h := Idempotent(keys, "sessions", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	do := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(""))
	require.Equal(t, http.StatusOK, do(""))
	require.Equal(t, 2, calls)

	status = http.StatusConflict
	require.Equal(t, http.StatusConflict, do("k1"))
	status = http.StatusOK
	require.Equal(t, http.StatusOK, do("k1"))
	require.Equal(t, http.StatusConflict, do("k1"))
	require.Equal(t, 4, calls)
}
