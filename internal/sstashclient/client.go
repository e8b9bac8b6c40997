// Package sstashclient is a thin client for the sstash wire protocol,
// used by the interactive CLI. It speaks the same framing the server
// decodes, grounded in the teacher's rpc/client adapter style — one
// method per verb over a connected transport.
package sstashclient

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sstash/sstash/internal/wire"
)

// Client is a single TCP connection to an sstash server speaking the
// length-prefixed token protocol.
type Client struct {
	conn net.Conn
	dec  *wire.Decoder
	buf  []byte
}

// Dial connects to addr with the given timeout.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, dec: wire.NewDecoder(), buf: make([]byte, 64*1024)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// reply is the parsed shape of a server response: either OK, VALUE
// with a payload, or ERROR with a message.
type reply struct {
	kind    string
	payload []byte
}

func (c *Client) roundTrip(verb string, args []string, opts map[string]string) (reply, error) {
	cmd := &wire.Command{Verb: verb, Args: args, Opts: opts}
	var req []byte
	for _, tok := range cmd.Encode() {
		req = append(req, tok...)
	}
	if _, err := c.conn.Write(req); err != nil {
		return reply{}, err
	}
	return c.readReply()
}

// readReply reads exactly one reply: a kind token followed, for VALUE
// and ERROR, by a payload token.
func (c *Client) readReply() (reply, error) {
	var queue [][]byte
	for len(queue) < 1 {
		toks, err := c.fill()
		if err != nil {
			return reply{}, err
		}
		queue = append(queue, toks...)
	}
	kind := string(queue[0])
	queue = queue[1:]
	if kind == "OK" {
		return reply{kind: kind}, nil
	}
	for len(queue) < 1 {
		toks, err := c.fill()
		if err != nil {
			return reply{}, err
		}
		queue = append(queue, toks...)
	}
	return reply{kind: kind, payload: queue[0]}, nil
}

func (c *Client) fill() ([][]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		toks, decErr := c.dec.Feed(c.buf[:n])
		if decErr != nil {
			return nil, decErr
		}
		if len(toks) > 0 {
			return toks, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func asError(r reply) error {
	if r.kind == "ERROR" {
		return fmt.Errorf("%s", string(r.payload))
	}
	return nil
}

// notFoundPrefix matches sstasherr.KeyNotFound's rendered message, the
// only way a GET miss is distinguishable over the wire (the protocol
// carries an error string, not a code).
const notFoundPrefix = "key not found"

// Get fetches a key's value from the named stash ("" selects default).
// A miss reports found=false with a nil error; any other server error is
// returned in err.
func (c *Client) Get(stash, key string) (value []byte, found bool, err error) {
	r, err := c.roundTrip(wire.VerbGet, []string{key}, optsFor(stash))
	if err != nil {
		return nil, false, err
	}
	if r.kind == "ERROR" {
		msg := string(r.payload)
		if strings.HasPrefix(msg, notFoundPrefix) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s", msg)
	}
	return r.payload, true, nil
}

// Set stores key=value with no expiration.
func (c *Client) Set(stash, key string, value []byte) error {
	r, err := c.roundTrip(wire.VerbSet, []string{key, string(value)}, optsFor(stash))
	if err != nil {
		return err
	}
	return asError(r)
}

// SetTTL stores key=value expiring after ttlMs milliseconds.
func (c *Client) SetTTL(stash, key string, value []byte, ttlMs uint64) error {
	r, err := c.roundTrip(wire.VerbSetTTL, []string{key, string(value), strconv.FormatUint(ttlMs, 10)}, optsFor(stash))
	if err != nil {
		return err
	}
	return asError(r)
}

// Delete removes a key.
func (c *Client) Delete(stash, key string) error {
	r, err := c.roundTrip(wire.VerbDelete, []string{key}, optsFor(stash))
	if err != nil {
		return err
	}
	return asError(r)
}

// UpdateTTL changes an existing key's expiration.
func (c *Client) UpdateTTL(stash, key string, ttlMs uint64) error {
	r, err := c.roundTrip(wire.VerbUpdateTTL, []string{key, strconv.FormatUint(ttlMs, 10)}, optsFor(stash))
	if err != nil {
		return err
	}
	return asError(r)
}

// Create creates a named stash.
func (c *Client) Create(name string, maxKeyCount int, offHeap bool) error {
	r, err := c.roundTrip(wire.VerbCreate, []string{name, strconv.Itoa(maxKeyCount), strconv.FormatBool(offHeap)}, nil)
	if err != nil {
		return err
	}
	return asError(r)
}

// Drop removes a named stash.
func (c *Client) Drop(name string) error {
	r, err := c.roundTrip(wire.VerbDrop, []string{name}, nil)
	if err != nil {
		return err
	}
	return asError(r)
}

// Info reports the addressed stash's metadata as a newline-separated
// key=value listing.
func (c *Client) Info(stash string) (string, error) {
	r, err := c.roundTrip(wire.VerbInfo, nil, optsFor(stash))
	if err != nil {
		return "", err
	}
	if r.kind == "ERROR" {
		return "", asError(r)
	}
	return string(r.payload), nil
}

func optsFor(stash string) map[string]string {
	if stash == "" {
		return nil
	}
	return map[string]string{wire.NameOptKey: stash}
}
