package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indexsync/internal/domain"
	"indexsync/internal/service"
)

// fakeListings implements ListingManager with pluggable behavior per test.
type fakeListings struct {
	create    func(ctx context.Context, req *service.CreateRequest) (*domain.Listing, error)
	edit      func(ctx context.Context, req *service.EditRequest) (*domain.Listing, error)
	delete    func(ctx context.Context, id string) error
	expireOne func(ctx context.Context, id string) error
	sweep     func(ctx context.Context) ([]string, error)

	createCalls int
}

func (f *fakeListings) Create(ctx context.Context, req *service.CreateRequest) (*domain.Listing, error) {
	f.createCalls++
	if f.create == nil {
		return &domain.Listing{ObjectID: "clf_test"}, nil
	}
	return f.create(ctx, req)
}

func (f *fakeListings) Edit(ctx context.Context, req *service.EditRequest) (*domain.Listing, error) {
	return f.edit(ctx, req)
}

func (f *fakeListings) Delete(ctx context.Context, id string) error {
	return f.delete(ctx, id)
}

func (f *fakeListings) ExpireOne(ctx context.Context, id string) error {
	return f.expireOne(ctx, id)
}

func (f *fakeListings) Sweep(ctx context.Context) ([]string, error) {
	return f.sweep(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(listings *fakeListings) http.Handler {
	return New(listings, "s3cret", testLogger()).Handler()
}

func doRequest(handler http.Handler, method, path, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if secret != "" {
		req.Header.Set(HeaderSecret, secret)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmit_RejectsMissingSecret(t *testing.T) {
	listings := &fakeListings{}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/submit", "", `{"title":"x"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, listings.createCalls, "unauthorized request must not reach the service")
}

func TestSubmit_RejectsWrongSecret(t *testing.T) {
	listings := &fakeListings{}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/submit", "wrong", `{"title":"x"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, listings.createCalls)
}

func TestSubmit_Success(t *testing.T) {
	expiresAt := time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)
	listings := &fakeListings{
		create: func(_ context.Context, req *service.CreateRequest) (*domain.Listing, error) {
			assert.Equal(t, "Bike for sale", req.Title)
			return &domain.Listing{ObjectID: "clf_abc", ExpiresAt: expiresAt}, nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/submit", "s3cret", `{"title":"Bike for sale"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "clf_abc", body["classified_id"])
	assert.Contains(t, body, "expires_at")
}

func TestSubmit_RootAlias(t *testing.T) {
	listings := &fakeListings{}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/", "s3cret", `{"title":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, listings.createCalls)
}

func TestSubmit_ValidationErrorListsMissingFields(t *testing.T) {
	listings := &fakeListings{
		create: func(context.Context, *service.CreateRequest) (*domain.Listing, error) {
			return nil, &domain.ValidationError{Missing: []string{"title", "price"}}
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/submit", "s3cret", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "missing required fields", body["error"])
	assert.Equal(t, []any{"title", "price"}, body["missing"])
}

func TestSubmit_MalformedBody(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodPost, "/submit", "s3cret", `{broken`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodGet, "/submit", "s3cret", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEdit_Success(t *testing.T) {
	updatedAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	listings := &fakeListings{
		edit: func(_ context.Context, req *service.EditRequest) (*domain.Listing, error) {
			assert.Equal(t, "clf_abc", req.ClassifiedID)
			require.NotNil(t, req.Price)
			assert.Equal(t, 80.0, *req.Price)
			return &domain.Listing{ObjectID: "clf_abc", UpdatedAt: updatedAt}, nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPut, "/edit", "s3cret", `{"classified_id":"clf_abc","price":80}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "clf_abc", body["classified_id"])
	assert.Contains(t, body, "updated_at")
}

func TestEdit_NotFound(t *testing.T) {
	listings := &fakeListings{
		edit: func(context.Context, *service.EditRequest) (*domain.Listing, error) {
			return nil, domain.ErrNotFound
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPut, "/edit", "s3cret", `{"classified_id":"clf_gone"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete_Success(t *testing.T) {
	var deletedID string
	listings := &fakeListings{
		delete: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodDelete, "/delete", "s3cret", `{"classified_id":"clf_abc"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clf_abc", deletedID)
}

func TestExpire_SingleListing(t *testing.T) {
	var expiredID string
	listings := &fakeListings{
		expireOne: func(_ context.Context, id string) error {
			expiredID = id
			return nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/expire", "", `{"classified_id":"clf_abc"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clf_abc", expiredID)
	body := decode(t, rec)
	assert.Equal(t, []any{"clf_abc"}, body["expired"])
}

func TestExpire_SweepWithoutID(t *testing.T) {
	listings := &fakeListings{
		sweep: func(context.Context) ([]string, error) {
			return []string{"clf_1", "clf_2"}, nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/expire", "", `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{"clf_1", "clf_2"}, body["expired"])
}

func TestExpire_EmptyBodyRunsSweep(t *testing.T) {
	sweepCalled := false
	listings := &fakeListings{
		sweep: func(context.Context) ([]string, error) {
			sweepCalled = true
			return []string{"clf_1"}, nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/expire", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sweepCalled)
	body := decode(t, rec)
	assert.Equal(t, []any{"clf_1"}, body["expired"])
}

func TestExpire_MalformedBodyStillRejected(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodPost, "/expire", "", `{broken`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpire_EmptySweepReturnsEmptyArray(t *testing.T) {
	listings := &fakeListings{
		sweep: func(context.Context) ([]string, error) {
			return []string{}, nil
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/expire", "", `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"expired":[]}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "timestamp")
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodPost, "/nope", "s3cret", `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodOptions, "/submit", "", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderSecret)
}

func TestCORSHeadersOnRegularResponses(t *testing.T) {
	handler := newTestServer(&fakeListings{})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	listings := &fakeListings{
		sweep: func(context.Context) ([]string, error) {
			panic("boom")
		},
	}
	handler := newTestServer(listings)

	rec := doRequest(handler, http.MethodPost, "/expire", "", `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "internal server error", body["error"])
}
