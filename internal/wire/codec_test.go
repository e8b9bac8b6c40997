package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestDecoderSingleToken(t *testing.T) {
	d := NewDecoder()
	toks, err := d.Feed(EncodeTokenString("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 1 || string(toks[0]) != "hello" {
		t.Fatalf("got %v", toks)
	}
}

func TestDecoderPartialTokenBuffered(t *testing.T) {
	d := NewDecoder()
	full := EncodeTokenString("hello world")

	toks, err := d.Feed(full[:4])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 0 {
		t.Fatalf("expected no tokens yet, got %v", toks)
	}

	toks, err = d.Feed(full[4:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 1 || string(toks[0]) != "hello world" {
		t.Fatalf("got %v", toks)
	}
}

func TestDecoderMalformedLength(t *testing.T) {
	d := NewDecoder()
	_, err := d.Feed([]byte("abc\r\nxyz"))
	if err == nil {
		t.Fatalf("expected protocol error for non-numeric length")
	}
}

// TestFramingResumability is the property test from spec.md §8: for any
// command byte string and any partition of it into chunks, feeding chunks
// in order yields exactly one dispatched command.
func TestFramingResumability(t *testing.T) {
	cmd := &Command{
		Verb: VerbSet,
		Args: []string{"foo", "bar"},
		Opts: map[string]string{"NAME": "default"},
	}
	var full []byte
	for _, tok := range cmd.Encode() {
		full = append(full, tok...)
	}

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		d := NewDecoder()
		var queue [][]byte
		dispatched := 0

		pos := 0
		for pos < len(full) {
			chunkLen := 1 + rng.Intn(5)
			if pos+chunkLen > len(full) {
				chunkLen = len(full) - pos
			}
			toks, err := d.Feed(full[pos : pos+chunkLen])
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			queue = append(queue, toks...)
			pos += chunkLen

			for {
				res, needMore := TryParse(queue)
				if needMore {
					break
				}
				queue = queue[res.Consumed:]
				if res.Cmd != nil {
					dispatched++
				}
			}
		}

		if dispatched != 1 {
			t.Fatalf("trial %d: expected exactly 1 dispatched command, got %d", trial, dispatched)
		}
	}
}

func TestEncodeTokenRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 300)
	tok := EncodeToken(payload)

	d := NewDecoder()
	toks, err := d.Feed(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 1 || !bytes.Equal(toks[0], payload) {
		t.Fatalf("round trip mismatch")
	}
}
