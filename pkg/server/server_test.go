package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-concierge/internal/metrics"
	"github.com/teslashibe/go-concierge/pkg/history"
	"github.com/teslashibe/go-concierge/pkg/hub"
	"github.com/teslashibe/go-concierge/pkg/realtime"
)

type fakeIssuer struct {
	token string
	err   error
}

func (f fakeIssuer) Token(context.Context) (string, error) {
	return f.token, f.err
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Store == nil {
		opts.Store = history.NewMemoryStore()
	}
	opts.Logger = slog.New(slog.DiscardHandler)
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func newTestController(t *testing.T) (*realtime.Controller, *realtime.MockConnector) {
	t.Helper()
	conn := realtime.NewMockConnector()
	ctrl, err := realtime.NewController(realtime.StaticCredential("ek_test"), conn,
		realtime.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Stop)
	return ctrl, conn
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) (*http.Response, apiResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.App().Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var out apiResponse
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a store")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	resp, _ := do(t, s, "GET", "/health", "")
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}

func TestVoiceToken(t *testing.T) {
	t.Run("issued", func(t *testing.T) {
		s := newTestServer(t, Options{Issuer: fakeIssuer{token: "ek_abc"}})
		resp, out := do(t, s, "GET", "/api/voice", "")
		if resp.StatusCode != 200 || !out.Success {
			t.Fatalf("Status = %d, body = %+v", resp.StatusCode, out)
		}
		var data struct {
			VoiceToken string `json:"voiceToken"`
		}
		_ = json.Unmarshal(out.Data, &data)
		if data.VoiceToken != "ek_abc" {
			t.Errorf("voiceToken = %q", data.VoiceToken)
		}
	})

	t.Run("issuer failure hides the cause", func(t *testing.T) {
		s := newTestServer(t, Options{Issuer: fakeIssuer{err: errors.New("sk-secret rejected")}})
		resp, out := do(t, s, "GET", "/api/voice", "")
		if resp.StatusCode != 500 || out.Success {
			t.Fatalf("Status = %d, body = %+v", resp.StatusCode, out)
		}
		if strings.Contains(out.Message, "sk-secret") {
			t.Error("upstream error leaked to the client")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, Options{})
		resp, _ := do(t, s, "GET", "/api/voice", "")
		if resp.StatusCode != 503 {
			t.Errorf("Status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("feeds the credential client", func(t *testing.T) {
		s := newTestServer(t, Options{Issuer: fakeIssuer{token: "ek_roundtrip"}})
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		go s.App().Listener(ln)

		creds := realtime.NewHTTPCredentials("http://"+ln.Addr().String()+"/api/voice", nil, slog.New(slog.DiscardHandler))
		token, err := creds.Token(context.Background())
		if err != nil || token != "ek_roundtrip" {
			t.Errorf("Token = %q, %v", token, err)
		}
	})
}

func TestOpenAIIssuer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "gpt-4o-realtime-preview" || req.InputAudioTranscription.Model != "whisper-1" {
			t.Errorf("request = %+v", req)
		}
		if len(req.Modalities) != 2 || req.Instructions == "" {
			t.Errorf("request = %+v", req)
		}
		io.WriteString(w, `{"id":"sess_1","client_secret":{"value":"ek_live","expires_at":1700000000}}`)
	}))
	defer upstream.Close()

	i := NewOpenAIIssuer(upstream.URL, "sk-test", "gpt-4o-realtime-preview", "Be helpful.", nil, nil)
	token, err := i.Token(context.Background())
	if err != nil || token != "ek_live" {
		t.Fatalf("Token = %q, %v", token, err)
	}

	if _, err := NewOpenAIIssuer(upstream.URL, "", "m", "", nil, nil).Token(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("missing key: %v", err)
	}
}

func TestOpenAIIssuer_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"upstream error", 401, `{"error":{"message":"bad key"}}`},
		{"no secret", 200, `{"id":"sess_1"}`},
		{"not json", 200, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer upstream.Close()

			i := NewOpenAIIssuer(upstream.URL, "sk-test", "m", "", nil, nil)
			if _, err := i.Token(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHistoryAPI(t *testing.T) {
	store := history.NewMemoryStore()
	s := newTestServer(t, Options{Store: store})

	resp, out := do(t, s, "POST", "/api/history",
		`{"id":null,"messages":[{"role":"user","content":"Hi"}]}`,
		"X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if resp.StatusCode != 200 || !out.Success {
		t.Fatalf("Status = %d, body = %+v", resp.StatusCode, out)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(out.Data, &created)
	if created.ID == "" {
		t.Fatal("no id returned")
	}

	body := `{"id":"` + created.ID + `","messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello!"}]}`
	if resp, out := do(t, s, "POST", "/api/history", body); resp.StatusCode != 200 || !out.Success {
		t.Fatalf("update: %d %+v", resp.StatusCode, out)
	}

	resp, out = do(t, s, "GET", "/api/history/"+created.ID, "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	var rec history.Record
	_ = json.Unmarshal(out.Data, &rec)
	if len(rec.Messages) != 2 || rec.UserIP != "203.0.113.7" {
		t.Errorf("record = %+v", rec)
	}

	if resp, _ := do(t, s, "GET", "/api/history/missing", ""); resp.StatusCode != 404 {
		t.Errorf("missing record Status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, "POST", "/api/history", `{"id":null}`); resp.StatusCode != 400 {
		t.Errorf("no messages Status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, "POST", "/api/history", `{"messages":[{"role":"system","content":"x"}]}`); resp.StatusCode != 400 {
		t.Errorf("bad role Status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, "POST", "/api/history", `not json`); resp.StatusCode != 400 {
		t.Errorf("bad body Status = %d", resp.StatusCode)
	}
}

func TestHistoryClientAgainstServer(t *testing.T) {
	s := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)

	c := history.NewClient("http://"+ln.Addr().String()+"/api/history", nil, slog.New(slog.DiscardHandler))
	id, err := c.Save(context.Background(), "", []history.Message{{Role: history.RoleUser, Content: "Hello"}})
	if err != nil || id == "" {
		t.Fatalf("Save = %q, %v", id, err)
	}
	again, err := c.Save(context.Background(), id, []history.Message{
		{Role: history.RoleUser, Content: "Hello"},
		{Role: history.RoleAssistant, Content: "Hi"},
	})
	if err != nil || again != id {
		t.Errorf("second Save = %q, %v", again, err)
	}
}

func TestSessionRoutes(t *testing.T) {
	t.Run("disabled without controller", func(t *testing.T) {
		s := newTestServer(t, Options{})
		if resp, _ := do(t, s, "GET", "/api/session", ""); resp.StatusCode != 503 {
			t.Errorf("Status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		ctrl, conn := newTestController(t)
		s := newTestServer(t, Options{Controller: ctrl})

		resp, out := do(t, s, "POST", "/api/session/start", "")
		if resp.StatusCode != 200 || !out.Success {
			t.Fatalf("start: %d %+v", resp.StatusCode, out)
		}
		var snap realtime.Snapshot
		_ = json.Unmarshal(out.Data, &snap)
		if !snap.Active || snap.SessionID == "" {
			t.Errorf("snapshot = %+v", snap)
		}

		sendText := func() bool {
			t.Helper()
			req := httptest.NewRequest("POST", "/api/session/text", strings.NewReader(`{"text":"hello"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.App().Test(req)
			if err != nil {
				t.Fatal(err)
			}
			var out struct {
				Sent bool `json:"sent"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&out)
			return out.Sent
		}

		if sendText() {
			t.Error("text sent before the channel opened")
		}
		p := conn.Last()
		p.SimulateOpen()
		if !sendText() {
			t.Error("text not sent on open channel")
		}

		if resp, _ := do(t, s, "POST", "/api/session/text", `{"text":""}`); resp.StatusCode != 400 {
			t.Errorf("empty text Status = %d", resp.StatusCode)
		}

		if resp, out := do(t, s, "POST", "/api/session/playback", `{"playing":true}`); resp.StatusCode != 200 {
			t.Errorf("playback: %d %+v", resp.StatusCode, out)
		}
		if ctrl.Snapshot().Turn != realtime.TurnAssistantSpeaking {
			t.Errorf("turn = %s", ctrl.Snapshot().Turn)
		}

		resp, out = do(t, s, "POST", "/api/session/stop", "")
		_ = json.Unmarshal(out.Data, &snap)
		if resp.StatusCode != 200 || snap.Active {
			t.Errorf("stop: %d %+v", resp.StatusCode, snap)
		}
		if !p.Closed() {
			t.Error("peer not closed")
		}
	})

	t.Run("start failure", func(t *testing.T) {
		ctrl, conn := newTestController(t)
		conn.OpenFunc = func(context.Context, string, realtime.PeerHandlers) (realtime.Peer, error) {
			return nil, realtime.NewSignalingError(500, "")
		}
		s := newTestServer(t, Options{Controller: ctrl})

		resp, out := do(t, s, "POST", "/api/session/start", "")
		if resp.StatusCode != fiber.StatusBadGateway || out.Success {
			t.Errorf("start: %d %+v", resp.StatusCode, out)
		}
	})
}

func TestEventFeed(t *testing.T) {
	ctrl, conn := newTestController(t)
	s := newTestServer(t, Options{Controller: ctrl})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	read := func() hub.Event {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		var ev hub.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return ev
	}

	if ev := read(); ev.Type != EventSnapshot {
		t.Fatalf("first event = %s, want snapshot", ev.Type)
	}

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	p := conn.Last()
	p.SimulateOpen()
	p.SimulateEvent(map[string]string{
		"type":       realtime.EventUserTranscriptDone,
		"transcript": "Is the flat furnished?",
	})

	seen := map[string]bool{}
	for !seen[EventMessage] {
		seen[read().Type] = true
	}
	if !seen[EventState] || !seen[EventLifecycle] {
		t.Errorf("events seen = %v", seen)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New("concierge")
	m.SessionStarted()
	s := newTestServer(t, Options{Metrics: m})

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "concierge_active_sessions 1") {
		t.Errorf("metrics output missing gauge:\n%s", body)
	}
}

func TestClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(clientIP(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 198.51.100.2 ,10.0.0.1")
	resp, _ := app.Test(req)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "198.51.100.2" {
		t.Errorf("clientIP = %q", body)
	}
}
