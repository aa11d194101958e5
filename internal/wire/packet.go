// Package wire implements the length-framed request/response codec used on
// the single long-lived TCP connection to the remote server: text headers
// terminated by a blank line, followed by exactly content-length bytes of
// opaque body.
package wire

import (
	"bytes"
	"fmt"
	"strconv"
)

// Reserved header keys with protocol-level meaning.
const (
	HeaderContentLength = "content-length"
	HeaderController    = "controller"
	HeaderAction        = "action"
	HeaderResult        = "result"
)

var headerSep = []byte("\n\n")

// Packet is one frame: a set of headers plus an opaque body. Header order is
// not significant; content-length is derived from the body automatically on
// encode.
type Packet struct {
	Headers map[string]string
	Body    []byte
}

// New builds a Packet with a fresh header map, never sharing one between
// calls (the source's packet.py took header={} as a default argument and
// mutated it in place across instances; every call here gets its own map).
func New(headers map[string]string, body []byte) *Packet {
	p := &Packet{Headers: make(map[string]string, len(headers)+1)}
	for k, v := range headers {
		p.Headers[k] = v
	}
	p.SetBody(body)
	return p
}

// SetBody replaces the body and recomputes content-length.
func (p *Packet) SetBody(body []byte) {
	p.Body = body
	p.Headers[HeaderContentLength] = strconv.Itoa(len(body))
}

// Get returns a header value and whether it was present.
func (p *Packet) Get(key string) (string, bool) {
	v, ok := p.Headers[key]
	return v, ok
}

// ContentLength parses the content-length header. It fails if the header is
// missing or not an integer, distinct from simply being incomplete.
func (p *Packet) ContentLength() (int, error) {
	v, ok := p.Headers[HeaderContentLength]
	if !ok {
		return 0, fmt.Errorf("wire: missing %s header", HeaderContentLength)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("wire: invalid %s header %q: %w", HeaderContentLength, v, err)
	}
	return n, nil
}

// Check reports whether the body is exactly as long as content-length
// claims. It is the frame-completeness predicate driving the transport's
// receive loop.
func (p *Packet) Check() (bool, error) {
	n, err := p.ContentLength()
	if err != nil {
		return false, err
	}
	return len(p.Body) == n, nil
}

// Encode serializes headers (skipping any whose value is empty-but-unset —
// here, any key absent from the map) followed by a blank line and the raw
// body bytes.
func (p *Packet) Encode() []byte {
	var buf bytes.Buffer
	for k, v := range p.Headers {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(p.Body)
	return buf.Bytes()
}

// state is the decoder's position in the header/body state machine.
type state int

const (
	stateHeaders state = iota
	stateBody
	stateComplete
)

// Decoder reassembles a Packet across an arbitrary split of the encoded
// byte stream. Unlike the source's Packet.parse, which used a package-level
// static method threading a *Packet through calls, this is an explicit
// value: no state is shared between independent connections.
type Decoder struct {
	state state
	buf   bytes.Buffer // accumulates raw bytes until headers are parsed
	pkt   *Packet
	want  int // content-length, valid once state >= stateBody
}

// NewDecoder returns a decoder ready to consume the start of a new frame.
func NewDecoder() *Decoder {
	return &Decoder{pkt: &Packet{Headers: make(map[string]string)}}
}

// Feed appends a chunk of bytes read from the transport. It returns the
// completed Packet once content-length bytes of body have been seen, or nil
// if the frame is still incomplete. A Decoder handles one frame: after it
// has returned a non-nil Packet, any further Feed returns an error, so the
// next frame needs a new Decoder. Body bytes beyond content-length are
// discarded without an error; Feed does not report them.
func (d *Decoder) Feed(chunk []byte) (*Packet, error) {
	switch d.state {
	case stateHeaders:
		d.buf.Write(chunk)
		raw := d.buf.Bytes()
		idx := bytes.Index(raw, headerSep)
		if idx < 0 {
			return nil, nil
		}
		if err := d.parseHeaders(raw[:idx]); err != nil {
			return nil, err
		}
		n, err := d.pkt.ContentLength()
		if err != nil {
			return nil, err
		}
		d.want = n
		d.state = stateBody
		rest := raw[idx+len(headerSep):]
		d.buf.Reset()
		return d.appendBody(rest)
	case stateBody:
		return d.appendBody(chunk)
	default:
		return nil, fmt.Errorf("wire: decoder fed after completion")
	}
}

func (d *Decoder) parseHeaders(raw []byte) error {
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		parts := bytes.SplitN(line, []byte(":"), 2)
		if len(parts) != 2 {
			return fmt.Errorf("wire: malformed header line %q", line)
		}
		key := string(bytes.TrimSpace(parts[0]))
		value := string(bytes.TrimSpace(parts[1]))
		d.pkt.Headers[key] = value
	}
	return nil
}

func (d *Decoder) appendBody(chunk []byte) (*Packet, error) {
	if len(chunk) > 0 {
		d.buf.Write(chunk)
	}
	if d.buf.Len() < d.want {
		return nil, nil
	}
	// Truncate any overshoot: the body is cut to exactly content-length and
	// the trailing bytes are dropped. Neither this decoder nor
	// transport.Receive reports them.
	body := d.buf.Bytes()[:d.want]
	d.pkt.Body = append([]byte(nil), body...)
	d.state = stateComplete
	return d.pkt, nil
}

// Complete reports whether the decoder has produced its packet.
func (d *Decoder) Complete() bool {
	return d.state == stateComplete
}
