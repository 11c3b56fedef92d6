package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indexsync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		AppID:   "TESTAPP",
		APIKey:  "testkey",
		Index:   "posts",
		BaseURL: server.URL,
	}, testLogger())
}

func TestSaveObjects_BatchPayload(t *testing.T) {
	var gotPath, gotAppID, gotKey string
	var gotBody batchRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAppID = r.Header.Get("X-Algolia-Application-Id")
		gotKey = r.Header.Get("X-Algolia-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"taskID":1}`))
	})

	records := []any{
		map[string]any{"objectID": "a", "title": "First"},
		map[string]any{"objectID": "b", "title": "Second"},
	}
	require.NoError(t, client.SaveObjects(context.Background(), records))

	assert.Equal(t, "/1/indexes/posts/batch", gotPath)
	assert.Equal(t, "TESTAPP", gotAppID)
	assert.Equal(t, "testkey", gotKey)
	require.Len(t, gotBody.Requests, 2)
	assert.Equal(t, "updateObject", gotBody.Requests[0].Action)
}

func TestSaveObjects_EmptyBatchSkipsCall(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty batch")
	})

	require.NoError(t, client.SaveObjects(context.Background(), nil))
}

func TestSaveObject_PutsRecord(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"taskID":1}`))
	})

	err := client.SaveObject(context.Background(), "clf_abc", map[string]any{"objectID": "clf_abc"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/1/indexes/posts/clf_abc", gotPath)
}

func TestGetObject_DecodesRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objectID":"clf_abc","title":"Bike","status":"active"}`))
	})

	var listing domain.Listing
	require.NoError(t, client.GetObject(context.Background(), "clf_abc", &listing))
	assert.Equal(t, "clf_abc", listing.ObjectID)
	assert.Equal(t, domain.StatusActive, listing.Status)
}

func TestGetObject_MissingRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	var listing domain.Listing
	err := client.GetObject(context.Background(), "clf_gone", &listing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteObject_ToleratesMissingRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	assert.NoError(t, client.DeleteObject(context.Background(), "clf_gone"))
}

func TestDo_ServerErrorIsUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index locked", http.StatusServiceUnavailable)
	})

	err := client.SaveObject(context.Background(), "clf_abc", map[string]any{})

	var uerr *domain.UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "search", uerr.System)
	assert.Contains(t, uerr.Error(), "503")
}

func TestArticles_SaveItemsRecordShape(t *testing.T) {
	published := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	var gotBody struct {
		Requests []struct {
			Action string         `json:"action"`
			Body   map[string]any `json:"body"`
		} `json:"requests"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"taskID":1}`))
	})

	image := "https://img.example.com/a.jpg"
	items := []domain.FeedItem{{
		GUID:        "item-1",
		Title:       "Bridge reopens",
		Link:        "https://example.com/posts/1",
		ImageURL:    &image,
		Categories:  []string{"News"},
		PublishedAt: published,
	}}
	require.NoError(t, NewArticles(client).SaveItems(context.Background(), items))

	require.Len(t, gotBody.Requests, 1)
	record := gotBody.Requests[0].Body
	assert.Equal(t, "item-1", record["objectID"])
	assert.Equal(t, "Bridge reopens", record["title"])
	assert.Equal(t, image, record["image"])
	assert.EqualValues(t, published.UnixMilli(), record["publishedAt"])
}
