package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/host"
	"github.com/icco/chordglide/internal/voicemap"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeBackend struct {
	resets int
}

func (b *fakeBackend) Snapshot() engine.Snapshot {
	return engine.Snapshot{Latency: 9600, Current: []int{60, 64, 67}}
}

func (b *fakeBackend) Reset() { b.resets++ }

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *host.Store, *fakeBackend) {
	t.Helper()
	store := host.NewStore(engine.DefaultParams())
	backend := &fakeBackend{}
	srv := httptest.NewServer(New(quiet, store, backend, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, store, backend
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetParams(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/params", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p engine.Params
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, engine.DefaultParams(), p)
}

func TestPutParams(t *testing.T) {
	srv, store, _ := newTestServer(t)
	resp := do(t, http.MethodPut, srv.URL+"/params", `{"glideMs": 450, "strategy": "random"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	p := store.Get()
	assert.Equal(t, 450.0, p.GlideMs)
	assert.Equal(t, voicemap.KindRandom, p.Strategy)
	assert.Equal(t, 12.0, p.BendRange)
}

func TestPutParamsRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"syntax", `{"glideMs":`, http.StatusBadRequest},
		{"unknown field", `{"tempo": 120}`, http.StatusBadRequest},
		{"strategy", `{"strategy": "loudest"}`, http.StatusBadRequest},
		{"out of range", `{"glideMs": 5}`, http.StatusUnprocessableEntity},
		{"bend range", `{"bendRange": 0}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, store, _ := newTestServer(t)
			resp := do(t, http.MethodPut, srv.URL+"/params", tc.body)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.Equal(t, engine.DefaultParams(), store.Get())

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStatus(t *testing.T) {
	id := uuid.New()
	srv, _, _ := newTestServer(t, WithRunID(id))
	resp := do(t, http.MethodGet, srv.URL+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, id.String(), st.RunID)
	assert.Equal(t, 9600, st.Snapshot.Latency)
	assert.Equal(t, []int{60, 64, 67}, st.Snapshot.Current)
}

func TestReset(t *testing.T) {
	srv, _, backend := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/reset", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, backend.resets)

	resp = do(t, http.MethodGet, srv.URL+"/reset", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/params", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPersistDebounced(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []engine.Params
	)
	save := func(p engine.Params) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, p)
		return nil
	}
	srv, _, _ := newTestServer(t, WithPersist(save, 100*time.Millisecond))

	for _, ms := range []string{"100", "150", "300"} {
		resp := do(t, http.MethodPut, srv.URL+"/params", `{"glideMs": `+ms+`}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(saved) == 1 && saved[0].GlideMs == 300
	}, time.Second, 10*time.Millisecond)
}
