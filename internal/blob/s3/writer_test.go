package s3blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPut struct {
	method string
	path   string
	body   string
}

func newTestWriter(t *testing.T, status int) (*Writer, *[]recordedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []recordedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "archive",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
		Prefix:         "cricbot/",
	})
	require.NoError(t, err)
	return NewWriter(c), &puts
}

func TestWriter_Put(t *testing.T) {
	w, puts := newTestWriter(t, http.StatusOK)

	err := w.Put(context.Background(), "bets/rec-1/payload.json", strings.NewReader(`{"id":"rec-1"}`), "application/json")
	require.NoError(t, err)

	require.NotEmpty(t, *puts)
	got := (*puts)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/archive/cricbot/bets/rec-1/payload.json", got.path)
	assert.Contains(t, got.body, `{"id":"rec-1"}`)
}

func TestWriter_PutError(t *testing.T) {
	w, _ := newTestWriter(t, http.StatusForbidden)

	err := w.Put(context.Background(), "snapshots/x.json", strings.NewReader("{}"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3blob: put object cricbot/snapshots/x.json")
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestClientKey(t *testing.T) {
	c := &Client{prefix: "cricbot/"}
	assert.Equal(t, "cricbot/a/b.json", c.Key("/a/b.json"))
	assert.Equal(t, "x", (&Client{}).Key("x"))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}

func TestClientHealth(t *testing.T) {
	w, calls := newTestWriter(t, http.StatusOK)
	require.NoError(t, w.client.Health(context.Background()))
	require.NotEmpty(t, *calls)
	assert.Equal(t, http.MethodHead, (*calls)[0].method)
	assert.Equal(t, "/archive", (*calls)[0].path)

	w, _ = newTestWriter(t, http.StatusForbidden)
	err := w.client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed for bucket archive")
}
