package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
	"go.aimuz.me/voicechat/transport"
)

const testChannel = "vscode-chrome"

type recordingPublisher struct {
	mu   sync.Mutex
	envs []message.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env message.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

func newTestServer(pub Publisher) *Server {
	reg := prometheus.NewRegistry()
	return New(Config{
		Channel:  testChannel,
		Gatherer: reg,
		Metrics:  metrics.New(reg),
	}, pub)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// ─────────────────────────────────────────────────────────────────────────────
// Snippet endpoint
// ─────────────────────────────────────────────────────────────────────────────

func TestSnippet_PublishesAndAcknowledges(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(pub)

	rr := do(t, s.Handler(), http.MethodPost, "/snippet", `{"snippet":"fmt.Println(1)"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp snippetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "This snippet was injected into VSCode: fmt.Println(1)", resp.Message)

	require.Len(t, pub.envs, 1)
	m, err := message.Decode(pub.envs[0])
	require.NoError(t, err)
	assert.Equal(t, message.CodeSnippet{Snippet: "fmt.Println(1)"}, m)
}

func TestSnippet_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed json", method: http.MethodPost, path: "/snippet", body: `{"snippet":`, want: http.StatusBadRequest},
		{name: "missing snippet", method: http.MethodPost, path: "/snippet", body: `{}`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, path: "/snippet", want: http.StatusNotFound},
		{name: "unknown route", method: http.MethodPost, path: "/nope", body: `{}`, want: http.StatusNotFound},
		{name: "root", method: http.MethodGet, path: "/", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			s := newTestServer(pub)

			rr := do(t, s.Handler(), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code)
			assert.Empty(t, pub.envs)
			if tt.want == http.StatusNotFound {
				assert.Equal(t, "Route Not Found", rr.Body.String())
			}
		})
	}
}

func TestSnippet_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel down")}
	s := newTestServer(pub)

	rr := do(t, s.Handler(), http.MethodPost, "/snippet", `{"snippet":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&recordingPublisher{})
	do(t, s.Handler(), http.MethodPost, "/snippet", `{"snippet":"x"}`)

	rr := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "voicechat_relay_snippets_total 1")
}

// ─────────────────────────────────────────────────────────────────────────────
// Hub
// ─────────────────────────────────────────────────────────────────────────────

func dial(t *testing.T, srv *httptest.Server, channel string) *transport.WebSocket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/" + channel
	ws, err := transport.DialWebSocket(ctx, transport.WebSocketConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func receive(t *testing.T, ws *transport.WebSocket) message.Message {
	t.Helper()
	select {
	case env, ok := <-ws.Receive():
		require.True(t, ok, "connection closed")
		m, err := message.Decode(env)
		require.NoError(t, err)
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHub_FansOutToOtherSubscribers(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	a := dial(t, srv, testChannel)
	b := dial(t, srv, testChannel)
	other := dial(t, srv, "elsewhere")
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Hub().Subscribers("elsewhere") == 1 }, 2*time.Second, 5*time.Millisecond)

	env, err := message.Encode(message.Connected{Optional: "optional"})
	require.NoError(t, err)
	require.NoError(t, a.Publish(context.Background(), env))

	assert.Equal(t, message.Connected{Optional: "optional"}, receive(t, b))

	select {
	case got := <-a.Receive():
		t.Fatalf("sender received its own frame: %s", got.Event)
	case got := <-other.Receive():
		t.Fatalf("other channel received %s", got.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SnippetReachesSubscribers(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ws := dial(t, srv, testChannel)
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/snippet", "application/json", strings.NewReader(`{"snippet":"hello"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, message.CodeSnippet{Snippet: "hello"}, receive(t, ws))
}

func TestHub_LeaveOnClose(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ws := dial(t, srv, testChannel)
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_RejectsNonGet(t *testing.T) {
	s := newTestServer(nil)
	rr := do(t, s.Handler(), http.MethodPost, "/realtime/"+testChannel, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// WebRTC subscribers
// ─────────────────────────────────────────────────────────────────────────────

func TestRTC_BridgesDataChannelIntoHub(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ws := dial(t, srv, testChannel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dc, err := transport.DialDataChannel(ctx, transport.WebRTCConfig{URL: srv.URL + "/rtc/" + testChannel})
	require.NoError(t, err)
	defer dc.Close()
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 2 }, 5*time.Second, 5*time.Millisecond)

	env, err := message.Encode(message.PromptSelectedCode{Prompt: "explain"})
	require.NoError(t, err)
	require.NoError(t, dc.Publish(ctx, env))
	assert.Equal(t, message.PromptSelectedCode{Prompt: "explain"}, receive(t, ws))

	env, err = message.Encode(message.CodeSnippet{Snippet: "x := 1"})
	require.NoError(t, err)
	require.NoError(t, ws.Publish(ctx, env))
	select {
	case got, ok := <-dc.Receive():
		require.True(t, ok, "data channel closed")
		m, err := message.Decode(got)
		require.NoError(t, err)
		assert.Equal(t, message.CodeSnippet{Snippet: "x := 1"}, m)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for data channel message")
	}

	require.NoError(t, dc.Close())
	require.Eventually(t, func() bool { return s.Hub().Subscribers(testChannel) == 1 }, 10*time.Second, 10*time.Millisecond)
}

func TestRTC_Errors(t *testing.T) {
	s := newTestServer(nil)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get is not routed", http.MethodGet, "", http.StatusNotFound},
		{"garbage offer", http.MethodPost, "not an sdp", http.StatusBadRequest},
		{"oversized offer", http.MethodPost, strings.Repeat("a", maxOfferBody+1), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s.Handler(), tt.method, "/rtc/"+testChannel, tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
