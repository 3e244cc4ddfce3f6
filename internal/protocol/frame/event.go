// Package frame implements the text/event-stream framing shared by the
// stream server and the reconnecting client.
//
// One logical event is a run of "event:", "id:" and "data:" lines closed by a
// blank line. Lines starting with ":" are comments and carry heartbeats.
package frame

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FieldEvent = "event"
	FieldID    = "id"
	FieldData  = "data"

	// DefaultHeartbeat is the comment text written for keep-alive frames.
	DefaultHeartbeat = "keep-alive"
)

var ErrInvalidField = errors.New("frame: field value contains a line break")

// Event is one logical event on the stream. Empty Type and ID are treated as
// absent; Data is always written, an empty string yields a single "data: " line.
type Event struct {
	Type string
	ID   string
	Data string
}

// IsType reports whether the event type matches name, ignoring case.
func (e Event) IsType(name string) bool {
	return strings.EqualFold(e.Type, name)
}

func (e Event) String() string {
	if e.ID != "" {
		return fmt.Sprintf("[%s] id=%s data=%s", e.Type, e.ID, e.Data)
	}
	return fmt.Sprintf("[%s] data=%s", e.Type, e.Data)
}

// Encode serializes ev into a complete frame including the terminating blank line.
func Encode(ev Event) ([]byte, error) {
	return AppendEvent(nil, ev)
}

// AppendEvent appends the frame for ev to dst.
func AppendEvent(dst []byte, ev Event) ([]byte, error) {
	if hasLineBreak(ev.Type) || hasLineBreak(ev.ID) {
		return dst, ErrInvalidField
	}

	if ev.Type != "" {
		dst = appendField(dst, FieldEvent, ev.Type)
	}
	if ev.ID != "" {
		dst = appendField(dst, FieldID, ev.ID)
	}
	for _, line := range SplitLines(ev.Data) {
		dst = appendField(dst, FieldData, line)
	}

	return append(dst, '\n'), nil
}

// EncodeComment returns a comment frame, the wire form of a heartbeat.
func EncodeComment(text string) []byte {
	out := make([]byte, 0, len(text)+4)
	out = append(out, ':', ' ')
	out = append(out, text...)
	return append(out, '\n', '\n')
}

// SplitLines splits s on "\r\n", "\n" and "\r". It always returns at least one
// element, so an empty string produces one empty line.
func SplitLines(s string) []string {
	lines := make([]string, 0, 1)
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			lines = append(lines, s[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, s[start:i])
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func appendField(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ':', ' ')
	dst = append(dst, value...)
	return append(dst, '\n')
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}
