package transcriber

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"scribe/audio"
)

const (
	interimMsg = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`
	finalMsg   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world ","confidence":0.9}]}}`
)

func fakeAudio() func() (audio.Context, error) {
	return func() (audio.Context, error) {
		return audio.NewFakeContext(nil, 5*time.Millisecond), nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// deepgramServer answers the first audio chunk with an interim and a final
// result, then closes normally once the client sends CloseStream.
func deepgramServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		conn.Write(ctx, websocket.MessageText, []byte(interimMsg))
		conn.Write(ctx, websocket.MessageText, []byte(finalMsg))
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nextEvent(t *testing.T, eng Engine) Event {
	t.Helper()
	select {
	case ev, ok := <-eng.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
	}
	return nil
}

func newTestEngine(t *testing.T, endpoint, key string) Engine {
	t.Helper()
	dg := NewDeepgram(key, WithEndpoint(endpoint), WithAudio(fakeAudio()))
	eng, err := dg.NewEngine(Config{Continuous: true, InterimResults: true, Language: "en-US"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestDeepgramStreamsResults(t *testing.T) {
	srv := deepgramServer(t)
	eng := newTestEngine(t, wsURL(srv), "test-key")
	eng.Start()

	ev, ok := nextEvent(t, eng).(ResultEvent)
	if !ok || len(ev.Results) != 1 || ev.Results[0].Final || ev.Results[0].Primary() != "hel" {
		t.Fatalf("first event = %#v, want interim \"hel\"", ev)
	}
	if ev.ResultIndex != 0 {
		t.Errorf("interim ResultIndex = %d, want 0", ev.ResultIndex)
	}

	ev, ok = nextEvent(t, eng).(ResultEvent)
	if !ok || !ev.Results[0].Final || ev.Results[0].Primary() != "hello world" {
		t.Fatalf("second event = %#v, want final \"hello world\"", ev)
	}

	eng.Stop()
	if _, ok := nextEvent(t, eng).(EndEvent); !ok {
		t.Fatal("expected EndEvent after Stop")
	}
}

func TestDeepgramRestartAfterEnd(t *testing.T) {
	srv := deepgramServer(t)
	eng := newTestEngine(t, wsURL(srv), "test-key")

	for round := 0; round < 2; round++ {
		eng.Start()
		nextEvent(t, eng) // interim
		nextEvent(t, eng) // final
		eng.Stop()
		if _, ok := nextEvent(t, eng).(EndEvent); !ok {
			t.Fatalf("round %d: expected EndEvent", round)
		}
	}
}

func TestDeepgramUnauthorized(t *testing.T) {
	srv := deepgramServer(t)
	eng := newTestEngine(t, wsURL(srv), "wrong-key")
	eng.Start()

	ev, ok := nextEvent(t, eng).(ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %#v", ev)
	}
	if ev.Reason != ReasonNotAllowed {
		t.Errorf("reason = %q, want %q", ev.Reason, ReasonNotAllowed)
	}
	if _, ok := nextEvent(t, eng).(EndEvent); !ok {
		t.Fatal("expected EndEvent after error")
	}
}

func TestDeepgramAudioCaptureFailure(t *testing.T) {
	srv := deepgramServer(t)
	dg := NewDeepgram("test-key", WithEndpoint(wsURL(srv)), WithAudio(func() (audio.Context, error) {
		return nil, errors.New("no microphone")
	}))
	eng, err := dg.NewEngine(Config{Language: "en-US"})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	eng.Start()

	ev, ok := nextEvent(t, eng).(ErrorEvent)
	if !ok || ev.Reason != ReasonAudioCapture {
		t.Fatalf("expected audio-capture error, got %#v", ev)
	}
	if _, ok := nextEvent(t, eng).(EndEvent); !ok {
		t.Fatal("expected EndEvent after error")
	}
}

func TestDeepgramServerDropIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusInternalError, "boom")
	}))
	defer srv.Close()

	eng := newTestEngine(t, wsURL(srv), "test-key")
	eng.Start()

	ev, ok := nextEvent(t, eng).(ErrorEvent)
	if !ok || ev.Reason != ReasonNetwork {
		t.Fatalf("expected network error, got %#v", ev)
	}
	if _, ok := nextEvent(t, eng).(EndEvent); !ok {
		t.Fatal("expected EndEvent after error")
	}
}

func TestDeepgramCloseClosesEvents(t *testing.T) {
	srv := deepgramServer(t)
	eng := newTestEngine(t, wsURL(srv), "test-key")
	eng.Start()
	nextEvent(t, eng)

	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}
	for range eng.Events() {
	}
	eng.Start() // no-op after Close
}

func TestDeepgramStreamURL(t *testing.T) {
	dg := NewDeepgram("k", WithModel("nova-2"))
	raw, err := dg.streamURL(Config{InterimResults: true, Language: "de-DE"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"model":           "nova-2",
		"language":        "de",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "true",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if u.Host != "api.deepgram.com" {
		t.Errorf("host = %q", u.Host)
	}
}

func TestDeepgramLanguage(t *testing.T) {
	for tag, want := range map[string]string{
		"en-US": "en-US",
		"hi-IN": "hi",
		"ja-JP": "ja",
		"zh-CN": "zh-CN",
	} {
		if got := deepgramLanguage(tag); got != want {
			t.Errorf("deepgramLanguage(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestParseDeepgramResult(t *testing.T) {
	for _, tt := range []struct {
		name     string
		msg      string
		ok       bool
		final    bool
		wantText string
	}{
		{"interim", interimMsg, true, false, "hel"},
		{"final trimmed", finalMsg, true, true, "hello world"},
		{"speech final", `{"type":"Results","speech_final":true,"channel":{"alternatives":[{"transcript":"ok"}]}}`, true, true, "ok"},
		{"empty transcript", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`, false, false, ""},
		{"no alternatives", `{"type":"Results","channel":{"alternatives":[]}}`, false, false, ""},
		{"metadata", `{"type":"Metadata"}`, false, false, ""},
		{"garbage", `not json`, false, false, ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := parseDeepgramResult([]byte(tt.msg))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if res.Final != tt.final {
				t.Errorf("final = %v, want %v", res.Final, tt.final)
			}
			if res.Primary() != tt.wantText {
				t.Errorf("text = %q, want %q", res.Primary(), tt.wantText)
			}
		})
	}
}

func TestDialFailureReason(t *testing.T) {
	for status, want := range map[int]ErrorReason{
		http.StatusUnauthorized:    ReasonNotAllowed,
		http.StatusForbidden:       ReasonNotAllowed,
		http.StatusPaymentRequired: ReasonServiceNotAllowed,
		http.StatusBadRequest:      ReasonLanguageNotSupported,
		http.StatusBadGateway:      ReasonNetwork,
		0:                          ReasonNetwork,
	} {
		if got := dialFailureReason(status); got != want {
			t.Errorf("dialFailureReason(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, _, err := New(Options{}); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}

	t.Setenv("DEEPGRAM_API_KEY", "from-env")
	factory, name, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if factory == nil || name != "deepgram" {
		t.Errorf("New() = %v, %q", factory, name)
	}
}
