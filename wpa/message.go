// Package wpa implements the text request/reply/event grammar spoken by
// wpa_supplicant over its control socket, the command queue that
// multiplexes it, and the Unix-datagram transport that carries it.
package wpa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Read/Named when a requested field is absent
// or does not parse as the requested type.
var ErrMalformed = errors.New("wpa: malformed message field")

// Kind classifies a Message.
type Kind int

const (
	// KindRequest is a locally built outgoing command.
	KindRequest Kind = iota
	// KindReply is the synchronous response to the in-flight request.
	KindReply
	// KindEvent is an unsolicited notification from the supplicant.
	KindEvent
)

// Message is a single control-protocol record: a request we built, or a
// reply/event parsed off the wire.
type Message struct {
	kind Kind
	name string
	args []string

	// consumed tracks how many leading args have been claimed by
	// positional Read calls so repeated reads advance through the token
	// stream.
	consumed int
}

// NewRequest starts building a request with the given command token.
func NewRequest(name string) Message {
	return Message{kind: KindRequest, name: name}
}

func (m Message) appendToken(token string) Message {
	m.args = append(append([]string(nil), m.args...), token)
	return m
}

// Append adds a bare string argument, quoting it if it contains whitespace.
func (m Message) Append(value string) Message {
	return m.appendToken(quoteIfNeeded(value))
}

// AppendInt adds a signed integer argument.
func (m Message) AppendInt(value int64) Message {
	return m.Append(strconv.FormatInt(value, 10))
}

// AppendUint adds an unsigned integer argument.
func (m Message) AppendUint(value uint64) Message {
	return m.Append(strconv.FormatUint(value, 10))
}

// AppendKV adds a key=value argument, quoting only the value if needed.
func (m Message) AppendKV(key, value string) Message {
	return m.appendToken(key + "=" + quoteIfNeeded(value))
}

func quoteIfNeeded(value string) string {
	if strings.ContainsAny(value, " \t") {
		return `"` + value + `"`
	}
	return value
}

func unquoted(value string) string {
	return strings.Trim(value, `"'`)
}

// Kind reports whether this message is a request, reply, or event.
func (m Message) Kind() Kind { return m.kind }

// Name returns the request command or event name.
func (m Message) Name() string { return m.name }

// Raw re-serialises the message to the exact text wpa_supplicant expects
// on the wire (requests). For parsed replies/events it is the name and
// arguments joined by single spaces, without an event's "<N>" prefix.
func (m Message) Raw() string {
	parts := append([]string{m.name}, m.args...)
	return strings.Join(parts, " ")
}

// IsOK reports whether a reply is the canonical "OK" response.
func (m Message) IsOK() bool {
	return m.kind == KindReply && m.name == "OK"
}

// IsFail reports whether a reply's body begins with "FAIL".
func (m Message) IsFail() bool {
	return m.kind == KindReply && strings.HasPrefix(m.name, "FAIL")
}

// skipToken is the sentinel destination type for Read that discards the
// next positional argument instead of storing it.
type skipToken struct{}

// Skip returns a Read destination that discards the next positional field.
func Skip() interface{} { return skipToken{} }

// Read consumes positional arguments in order into dests. Each dest must be
// one of: *string, *int64, *uint64, or the value returned by Skip(). Reads
// fail with ErrMalformed if a field is missing or does not match the
// destination's type; arguments beyond the last dest are left untouched.
func (m *Message) Read(dests ...interface{}) error {
	for _, dest := range dests {
		if m.consumed >= len(m.args) {
			return fmt.Errorf("wpa: %w: expected %d positional fields, have %d", ErrMalformed, m.consumed+1, len(m.args))
		}
		token := unquoted(m.args[m.consumed])
		m.consumed++

		switch d := dest.(type) {
		case skipToken:
			// discard
		case *string:
			*d = token
		case *int64:
			v, err := strconv.ParseInt(token, 0, 64)
			if err != nil {
				return fmt.Errorf("wpa: %w: %q is not an integer", ErrMalformed, token)
			}
			*d = v
		case *uint64:
			v, err := strconv.ParseUint(token, 0, 64)
			if err != nil {
				return fmt.Errorf("wpa: %w: %q is not an unsigned integer", ErrMalformed, token)
			}
			*d = v
		default:
			return fmt.Errorf("wpa: %w: unsupported Read destination %T", ErrMalformed, dest)
		}
	}
	return nil
}

// Named scans every argument (regardless of position or prior consumption)
// for a key=value token matching key and returns its unquoted value.
func (m Message) Named(key string) (string, bool) {
	prefix := key + "="
	for _, arg := range m.args {
		if strings.HasPrefix(arg, prefix) {
			return unquoted(strings.TrimPrefix(arg, prefix)), true
		}
	}
	return "", false
}

// Parse decodes an incoming datagram as either a reply or an event.
//
// Events begin with a single-character priority prefix in angle brackets
// (e.g. "<3>") which is stripped before the name token is read; everything
// else is treated as an opaque reply body, with "OK"/"FAIL..." recognised
// specially per the supplicant's reply grammar.
func Parse(data []byte) (Message, error) {
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return Message{}, fmt.Errorf("wpa: %w: empty message", ErrMalformed)
	}

	if rest, ok := stripEventPrefix(text); ok {
		fields := tokenize(rest)
		if len(fields) == 0 {
			return Message{}, fmt.Errorf("wpa: %w: event with no name", ErrMalformed)
		}
		return Message{kind: KindEvent, name: fields[0], args: fields[1:]}, nil
	}

	fields := tokenize(text)
	if len(fields) == 0 {
		return Message{}, fmt.Errorf("wpa: %w: empty reply", ErrMalformed)
	}
	return Message{kind: KindReply, name: fields[0], args: fields[1:]}, nil
}

func stripEventPrefix(text string) (string, bool) {
	if len(text) < 3 || text[0] != '<' {
		return "", false
	}
	end := strings.IndexByte(text, '>')
	if end < 0 {
		return "", false
	}
	if _, err := strconv.Atoi(text[1:end]); err != nil {
		return "", false
	}
	return strings.TrimSpace(text[end+1:]), true
}

// tokenize splits on whitespace while keeping single- or double-quoted
// spans (which may themselves contain whitespace) intact as one token.
func tokenize(text string) []string {
	var fields []string
	var current strings.Builder
	var quote byte
	inToken := false

	flush := func() {
		if inToken {
			fields = append(fields, current.String())
			current.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			current.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			inToken = true
			quote = c
			current.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		default:
			inToken = true
			current.WriteByte(c)
		}
	}
	flush()
	return fields
}
