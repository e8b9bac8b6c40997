// Package wire implements the sstash line protocol: a stream of
// length-prefixed tokens ("<decimal_length>\r\n<bytes>") framed into
// commands and replies.
package wire

import (
	"bytes"
	"strconv"

	"github.com/sstash/sstash/internal/sstasherr"
)

// EncodeToken frames payload as a single wire token.
func EncodeToken(payload []byte) []byte {
	lenStr := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(lenStr)+2+len(payload))
	out = append(out, lenStr...)
	out = append(out, '\r', '\n')
	out = append(out, payload...)
	return out
}

// EncodeTokenString is a convenience wrapper for string payloads.
func EncodeTokenString(s string) []byte {
	return EncodeToken([]byte(s))
}

// Decoder incrementally splits a byte stream into complete tokens, leaving
// a partial trailing token buffered until more bytes arrive.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly read bytes and returns every complete token that can
// now be extracted, in order. A malformed length header (non-numeric or
// negative) is a protocol error; the decoder's buffer is not advanced and
// still starts at the bad header, and the caller decides how to recover
// (sstash treats it as
// fatal for the connection, since byte-level framing cannot resync).
func (d *Decoder) Feed(data []byte) ([][]byte, error) {
	d.buf = append(d.buf, data...)

	var tokens [][]byte
	for {
		tok, rest, err, ok := splitToken(d.buf)
		if err != nil {
			return tokens, err
		}
		if !ok {
			break
		}
		tokens = append(tokens, tok)
		d.buf = rest
	}
	return tokens, nil
}

// splitToken extracts one "<len>\r\n<bytes>" token from the front of buf.
// ok is false when buf does not yet contain a full token (more data
// needed); this is not an error.
func splitToken(buf []byte) (token []byte, rest []byte, err error, ok bool) {
	nlIdx := bytes.IndexByte(buf, '\n')
	if nlIdx < 0 {
		return nil, buf, nil, false
	}

	header := buf[:nlIdx]
	header = bytes.TrimSuffix(header, []byte("\r"))

	n, convErr := strconv.Atoi(string(header))
	if convErr != nil || n < 0 {
		return nil, buf, sstasherr.Protocol("malformed token length: %q", header), false
	}

	total := nlIdx + 1 + n
	if len(buf) < total {
		return nil, buf, nil, false
	}

	tokCopy := make([]byte, n)
	copy(tokCopy, buf[nlIdx+1:total])
	return tokCopy, buf[total:], nil, true
}
