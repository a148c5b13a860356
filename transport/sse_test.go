package transport

import (
	"errors"
	"strings"
	"testing"
)

func TestScanSSE_MultiLineDataAndFields(t *testing.T) {
	input := "id: 1\nevent: message\ndata: line one\ndata: line two\n\n" +
		": this is a comment\n" +
		"data: second event\n\n"

	var events []sseEvent
	err := scanSSE(strings.NewReader(input), func(ev sseEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "1" || events[0].Event != "message" {
		t.Errorf("event[0] = %+v", events[0])
	}
	if events[0].Data != "line one\nline two" {
		t.Errorf("event[0].Data = %q, want %q", events[0].Data, "line one\nline two")
	}
	if events[1].Data != "second event" {
		t.Errorf("event[1].Data = %q", events[1].Data)
	}
}

func TestScanSSE_UnknownFieldIgnored(t *testing.T) {
	input := "retry: 3000\ndata: hello\n\n"
	var events []sseEvent
	err := scanSSE(strings.NewReader(input), func(ev sseEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE() error = %v", err)
	}
	if len(events) != 1 || events[0].Data != "hello" {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanSSE_StopsOnCallbackError(t *testing.T) {
	input := "data: one\n\ndata: two\n\n"
	boom := errors.New("boom")
	var calls int
	err := scanSSE(strings.NewReader(input), func(ev sseEvent) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("scanSSE() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
}

func TestWriteSSEEvent_RoundTripsThroughScanSSE(t *testing.T) {
	var b strings.Builder
	want := sseEvent{ID: "42", Event: "update", Data: "a\nb\nc"}
	if err := writeSSEEvent(&b, want); err != nil {
		t.Fatalf("writeSSEEvent() error = %v", err)
	}

	var got sseEvent
	err := scanSSE(strings.NewReader(b.String()), func(ev sseEvent) error {
		got = ev
		return nil
	})
	if err != nil {
		t.Fatalf("scanSSE() error = %v", err)
	}
	if got != want {
		t.Errorf("round-tripped event = %+v, want %+v", got, want)
	}
}
