// Package sse reads and writes Server-Sent Events. The Reader consumes
// upstream vendor streams; the Writer frames events for browser clients.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is a single SSE event with an optional type, id and data payload.
type Event struct {
	Type string // value of the "event:" field (may be empty)
	ID   string // value of the "id:" field (may be empty)
	Data string // value of the "data:" field(s), joined with "\n"
}

// Reader reads SSE events from an io.Reader.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20) // vendor chunks with inline tool args can be large
	return &Reader{scanner: sc}
}

// Next returns the next event. Returns (Event{}, io.EOF) at end of stream.
// An event that is not terminated by a blank line before EOF is still
// returned.
func (r *Reader) Next() (Event, error) {
	var ev Event
	var dataLines []string
	pending := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if pending {
				ev.Data = strings.Join(dataLines, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Type = value
			pending = true
		case "data":
			dataLines = append(dataLines, value)
			pending = true
		case "id":
			ev.ID = value
		}
		// retry: is ignored
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if pending {
		ev.Data = strings.Join(dataLines, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}
