package generate

import (
	"errors"
	"strings"
	"testing"
)

type sseEvent struct{ name, data string }

func TestStreamSSE(t *testing.T) {
	in := ": keepalive\n" +
		"event: message_start\n" +
		"data: {\"a\":1}\n\n" +
		"data: line one\n" +
		"data: line two\r\n\r\n" +
		"\n" +
		"data: trailing"

	var got []sseEvent
	err := streamSSE(strings.NewReader(in), func(ev, data string) error {
		got = append(got, sseEvent{ev, data})
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	want := []sseEvent{
		{"message_start", `{"a":1}`},
		{"", "line one\nline two"},
		{"", "trailing"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestStreamSSE_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := streamSSE(strings.NewReader("data: 1\n\ndata: 2\n\ndata: 3\n\n"), func(_, _ string) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 callbacks, got %d", calls)
	}
}
