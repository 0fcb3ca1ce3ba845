package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/pixaccess/pixel"
)

// Response is the body of a successful call.
type Response struct {
	method string
	body   []byte
}

// NewResponse wraps a body received for the given method.
func NewResponse(method string, body []byte) *Response {
	return &Response{method: method, body: body}
}

// Bytes returns the raw payload.
func (r *Response) Bytes() []byte {
	return r.body
}

// Tokens returns a reader over the structured text body.
func (r *Response) Tokens() *TokenReader {
	return &TokenReader{method: r.method, tokens: Tokenize(r.body)}
}

// Expect reads the structured body against steps and requires that nothing
// follows the last step.
func (r *Response) Expect(steps ...Step) error {
	return r.Tokens().Read(steps...)
}

// Tokenize splits a structured body on line breaks, '=' and ','.  Empty lines
// are dropped so a trailing "\r\n" is harmless, but empty values within a
// line are kept as empty tokens.
func Tokenize(body []byte) []string {
	var tokens []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		tokens = append(tokens, strings.Split(strings.ReplaceAll(line, "=", ","), ",")...)
	}
	return tokens
}

type stepKind uint8

const (
	keyStep stepKind = iota
	intStep
	boolStep
	textStep
)

func (k stepKind) expected(key string) string {
	switch k {
	case keyStep:
		return fmt.Sprintf("key %q", key)
	case intStep:
		return "integer"
	case boolStep:
		return "0 or 1"
	default:
		return "value"
	}
}

// Step is one expected token in a structured response.
type Step struct {
	name string
	kind stepKind
	key  string
	dest interface{}
}

// Key expects the literal key name.
func Key(name string) Step {
	return Step{name: name, kind: keyStep, key: name}
}

// Int expects a decimal integer stored into dest, which must be *int or *int64.
func Int(name string, dest interface{}) Step {
	return Step{name: name, kind: intStep, dest: dest}
}

// Bool expects "0" or "1".
func Bool(name string, dest *bool) Step {
	return Step{name: name, kind: boolStep, dest: dest}
}

// Text expects any token.
func Text(name string, dest *string) Step {
	return Step{name: name, kind: textStep, dest: dest}
}

// TokenReader walks a tokenized structured response one expected step at a time.
type TokenReader struct {
	method string
	tokens []string
	pos    int
}

// Read consumes one token per step and then requires the end of the response.
func (r *TokenReader) Read(steps ...Step) error {
	for _, step := range steps {
		if err := r.next(step); err != nil {
			return err
		}
	}
	return r.End()
}

// End returns a ProtocolError if unread tokens remain.
func (r *TokenReader) End() error {
	if r.pos < len(r.tokens) {
		return &pixel.ProtocolError{
			Method:   r.method,
			Step:     "end",
			Expected: "end of response",
			Actual:   r.tokens[r.pos],
		}
	}
	return nil
}

func (r *TokenReader) next(step Step) error {
	if r.pos >= len(r.tokens) {
		return r.mismatch(step, "<end of response>")
	}
	tok := r.tokens[r.pos]
	switch step.kind {
	case keyStep:
		if tok != step.key {
			return r.mismatch(step, tok)
		}
	case intStep:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return r.mismatch(step, tok)
		}
		switch dest := step.dest.(type) {
		case *int:
			*dest = int(v)
		case *int64:
			*dest = v
		default:
			return fmt.Errorf("%s: step %s has unsupported destination %T", r.method, step.name, step.dest)
		}
	case boolStep:
		switch tok {
		case "0":
			*step.dest.(*bool) = false
		case "1":
			*step.dest.(*bool) = true
		default:
			return r.mismatch(step, tok)
		}
	case textStep:
		*step.dest.(*string) = tok
	}
	r.pos++
	return nil
}

func (r *TokenReader) mismatch(step Step, actual string) error {
	return &pixel.ProtocolError{
		Method:   r.method,
		Step:     step.name,
		Expected: step.kind.expected(step.key),
		Actual:   actual,
	}
}

// Encoder writes structured responses.  It is used by the reference server and
// by tests.
type Encoder struct {
	b strings.Builder
}

// Line appends "key=v1,v2,...\r\n".
func (e *Encoder) Line(key string, values ...interface{}) *Encoder {
	e.b.WriteString(key)
	e.b.WriteByte('=')
	for i, v := range values {
		if i > 0 {
			e.b.WriteByte(',')
		}
		switch typed := v.(type) {
		case bool:
			if typed {
				e.b.WriteByte('1')
			} else {
				e.b.WriteByte('0')
			}
		default:
			fmt.Fprint(&e.b, v)
		}
	}
	e.b.WriteString("\r\n")
	return e
}

func (e *Encoder) Bytes() []byte {
	return []byte(e.b.String())
}
