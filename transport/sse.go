package transport

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one parsed Server-Sent Events frame. Fields the stream didn't
// set are left at their zero value; Data may span multiple "data:" lines,
// joined with "\n" per the SSE spec.
type sseEvent struct {
	ID    string
	Event string
	Data  string
}

// scanSSE reads r until EOF or an error, calling onEvent for each
// blank-line-terminated event. It stops and returns the first error from
// either the scanner or onEvent.
//
// Per the SSE framing rules: "id:", "event:", and "data:" lines accumulate
// into the current event; a line with no colon is a field name with an
// empty value; a line starting with ":" is a comment and ignored; a blank
// line dispatches the accumulated event and resets it.
func scanSSE(r io.Reader, onEvent func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cur sseEvent
	var dataLines []string
	hasContent := false

	flush := func() error {
		if !hasContent {
			return nil
		}
		cur.Data = strings.Join(dataLines, "\n")
		err := onEvent(cur)
		cur = sseEvent{}
		dataLines = nil
		hasContent = false
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			cur.ID = value
			hasContent = true
		case "event":
			cur.Event = value
			hasContent = true
		case "data":
			dataLines = append(dataLines, value)
			hasContent = true
		default:
			// Unknown field names (e.g. "retry") are accepted and ignored,
			// per SSE forward-compatibility.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// writeSSEEvent serializes one event in the wire format scanSSE parses,
// used by tests that fake a server.
func writeSSEEvent(w io.Writer, ev sseEvent) error {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteString("\n")
	}
	if ev.Event != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Event)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
