package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	if err := w.Send(Text("Investigating onion markets")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Send(Error("budget exhausted", CodeTurnLimitExceeded)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-transform" {
		t.Errorf("cache-control = %q, want %q", cc, "no-cache, no-transform")
	}
	body := rec.Body.String()
	frames := []string{
		"event: text\ndata: {\"content\":\"Investigating onion markets\"}\n\n",
		"event: error\ndata: {\"message\":\"budget exhausted\",\"code\":\"TURN_LIMIT_EXCEEDED\"}\n\n",
	}
	for _, frame := range frames {
		if !strings.Contains(body, frame) {
			t.Errorf("body missing frame %q\nbody: %q", frame, body)
		}
	}
	if !rec.Flushed {
		t.Error("expected response to be flushed")
	}
}

func TestErrorDefaultsCode(t *testing.T) {
	ev := Error("boom", "")
	data, ok := ev.Data.(ErrorData)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.Data)
	}
	if data.Code != CodeInvestigationError {
		t.Errorf("code = %q, want %q", data.Code, CodeInvestigationError)
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(Complete("done", "inv-1", 10)) || !Terminal(Error("x", CodeCancelled)) {
		t.Error("complete and error must be terminal")
	}
	if Terminal(Text("hi")) || Terminal(ToolStart("1", "darkweb_search", nil)) {
		t.Error("progress events must not be terminal")
	}
}
