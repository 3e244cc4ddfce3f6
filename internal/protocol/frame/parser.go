package frame

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Parser assembles events from a stream of lines. It keeps state between
// calls and resets after every blank line, so it can be fed line by line as
// bytes arrive.
type Parser struct {
	event   string
	id      string
	data    strings.Builder
	hasData bool
	seen    bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one line without its terminator. It returns the assembled
// event when line closes a frame that carried at least one known field.
func (p *Parser) Feed(line string) (Event, bool) {
	if line == "" {
		if !p.seen {
			return Event{}, false
		}
		ev := Event{Type: p.event, ID: p.id, Data: p.data.String()}
		p.Reset()
		return ev, true
	}

	if line[0] == ':' {
		return Event{}, false
	}

	field, value := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		field, value = line[:i], line[i+1:]
	}
	field = strings.TrimSpace(field)
	value = strings.TrimPrefix(value, " ")

	switch field {
	case FieldEvent:
		p.event = value
	case FieldID:
		p.id = value
	case FieldData:
		if p.hasData {
			p.data.WriteByte(' ')
		}
		p.data.WriteString(value)
		p.hasData = true
	default:
		return Event{}, false
	}
	p.seen = true
	return Event{}, false
}

// Pending reports whether a partially assembled frame is buffered.
func (p *Parser) Pending() bool {
	return p.seen
}

// Reset drops any partially assembled frame.
func (p *Parser) Reset() {
	p.event = ""
	p.id = ""
	p.data.Reset()
	p.hasData = false
	p.seen = false
}

// Reader reads events from a byte stream.
type Reader struct {
	r      *bufio.Reader
	parser *Parser
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), parser: NewParser()}
}

// Next blocks until the next complete event is available. When the stream
// ends it returns io.EOF, or io.ErrUnexpectedEOF if it ended inside a frame;
// the partial frame is discarded in that case.
func (r *Reader) Next() (Event, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && r.parser.Pending() {
				r.parser.Reset()
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		if ev, ok := r.parser.Feed(line); ok {
			return ev, nil
		}
	}
}

// readLine returns the next line without "\n" or "\r\n". A final line that is
// not terminated is incomplete and reported as an error, never as a line.
func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
