package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/cryptobook/cmd/api/graph"
	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/catalog"
	"github.com/alim08/cryptobook/pkg/config"
	"github.com/alim08/cryptobook/pkg/pubsub"
	"github.com/alim08/cryptobook/pkg/store"
)

type testEnv struct {
	ts       *httptest.Server
	srv      *Server
	store    store.RecordStore
	registry *pubsub.Registry
}

func newTestEnv(t *testing.T, s store.RecordStore, gate *auth.Gate) *testEnv {
	t.Helper()
	if s == nil {
		s = store.NewMemory()
	}
	if gate == nil {
		gate = auth.NewGate(nil, "")
	}
	cfg := &config.Config{
		HTTPPort:         config.DefaultPort,
		StoreBackend:     config.BackendMemory,
		SubscriberBuffer: 8,
		RequestTimeout:   5 * time.Second,
		ShutdownTimeout:  5 * time.Second,
	}

	registry := pubsub.NewRegistry(cfg.SubscriberBuffer)
	d, err := graph.NewDispatcher(graph.NewResolver(s, catalog.Default(), registry))
	require.NoError(t, err)

	srv := newServer(cfg, d, s, gate)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		registry.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.closeSockets(ctx)
		ts.Close()
	})
	return &testEnv{ts: ts, srv: srv, store: s, registry: registry}
}

type gqlResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

func (e *testEnv) post(t *testing.T, host, body string) (int, gqlResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/graphql", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if host != "" {
		req.Host = host
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, gqlResponse) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestGraphQL_PostQuery(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	status, out := e.post(t, "", `{"query":"{ coins { symbol } }"}`)
	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, out.Errors)

	coins := out.Data["coins"].([]interface{})
	require.Len(t, coins, 2)
	assert.Equal(t, "BTC", coins[0].(map[string]interface{})["symbol"])
}

func TestGraphQL_GetQuery(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	q := url.Values{}
	q.Set("query", `query T($n: ID) { user(id: $n) { id } trades { coin { symbol } } }`)
	q.Set("variables", `{"n":"1"}`)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/graphql?"+q.Encode(), nil)
	require.NoError(t, err)
	status, out := do(t, req)
	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, out.Errors)
	assert.Nil(t, out.Data["user"])
	trade := out.Data["trades"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ETH", trade["coin"].(map[string]interface{})["symbol"])
}

func TestGraphQL_GetMutationNotAllowed(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	q := url.Values{}
	q.Set("query", `mutation { addUser(user: {userName: "ada"}) { id } }`)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/graphql?"+q.Encode(), nil)
	require.NoError(t, err)
	status, out := do(t, req)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	require.Len(t, out.Errors, 1)

	all, err := e.store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGraphQL_BadRequests(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"query":`},
		{"missing query", `{"variables":{}}`},
		{"subscription over http", `{"query":"subscription { userAdded { id } }"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := e.post(t, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, out.Errors)
		})
	}
}

func TestGraphQL_ValidationErrorIsStillOK(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	status, out := e.post(t, "", `{"query":"{ nope }"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out.Errors)
}

func TestGraphQL_AddUserHostGate(t *testing.T) {
	e := newTestEnv(t, nil, auth.NewGate(nil, "admin.cryptobook.dev"))
	body := `{"query":"mutation { addUser(user: {userName: \"ada\"}) { id userName } }"}`

	status, out := e.post(t, "public.cryptobook.dev", body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "UNAUTHORIZED", out.Errors[0].Extensions["code"])
	assert.Nil(t, out.Data["addUser"])

	status, out = e.post(t, "admin.cryptobook.dev", body)
	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, out.Errors)
	users := out.Data["addUser"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "ada", users[0].(map[string]interface{})["userName"])
}

func TestGraphQL_AddUserBearerToken(t *testing.T) {
	priv, pub, err := auth.GenerateKeyPair(2048)
	require.NoError(t, err)
	tokens := auth.NewTokenServiceWithKeys(priv, pub, &auth.Config{Issuer: "cryptobook", Audience: "cryptobook-api", Expiration: time.Hour})
	tok, err := tokens.GenerateToken("1", "kzimms", []string{"admin"})
	require.NoError(t, err)

	e := newTestEnv(t, nil, auth.NewGate(tokens, ""))
	body := `{"query":"mutation { addUser(user: {userName: \"ada\"}) { id } }"}`

	status, out := e.post(t, "", body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "UNAUTHORIZED", out.Errors[0].Extensions["code"])

	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/graphql", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	status, out = do(t, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, out.Errors)
}

type downStore struct{ store.RecordStore }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestProbes(t *testing.T) {
	e := newTestEnv(t, nil, nil)

	resp, err := http.Get(e.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, err = http.Get(e.ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestEnv(t, downStore{store.NewMemory()}, nil)
	resp, err = http.Get(down.ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/graphql", bytes.NewBufferString(`{"query":"{ coins { id } }"}`))
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	req, err := http.NewRequest(http.MethodOptions, e.ts.URL+"/graphql", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGraphQL_StoredPasswordNotExposed(t *testing.T) {
	e := newTestEnv(t, nil, nil)
	status, out := e.post(t, "", `{"query":"mutation { addUser(user: {userName: \"ada\", password: \"pw\"}) { id password } }"}`)
	assert.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, out.Errors)

	all, err := e.store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
