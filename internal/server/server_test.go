package server

import (
	"net"
	"testing"
	"time"

	"github.com/sstash/sstash/internal/wire"
)

// fakeDispatcher records the last command it was asked to dispatch and
// returns a canned reply, so the server's framing/writing can be
// tested without a real stash manager.
type fakeDispatcher struct {
	lastCmd      *wire.Command
	lastReadOnly bool
	reply        []byte
}

func (f *fakeDispatcher) Dispatch(cmd *wire.Command, readOnly bool, bypassReadOnly bool) []byte {
	f.lastCmd = cmd
	f.lastReadOnly = readOnly
	return f.reply
}

func TestHandleConnectionDispatchesAndReplies(t *testing.T) {
	disp := &fakeDispatcher{reply: wire.EncodeOK()}
	s := New("unused", false, disp, nil)

	client, srv := net.Pipe()
	defer client.Close()
	go s.handleConnection(srv)

	cmd := &wire.Command{Verb: wire.VerbSet, Args: []string{"k", "v"}, Opts: map[string]string{}}
	req := flattenTokens(cmd.Encode())

	go func() {
		_, _ = client.Write(req)
	}()

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if string(buf[:n]) != string(wire.EncodeOK()) {
		t.Fatalf("unexpected reply: %q", buf[:n])
	}
	if disp.lastCmd == nil || disp.lastCmd.Verb != wire.VerbSet {
		t.Fatalf("expected dispatcher to see a SET command, got %+v", disp.lastCmd)
	}
	if disp.lastReadOnly {
		t.Fatalf("expected read_only=false for a primary-port server")
	}
}

func TestHandleConnectionMarksReadOnlyPort(t *testing.T) {
	disp := &fakeDispatcher{reply: wire.EncodeOK()}
	s := New("unused", true, disp, nil)

	client, srv := net.Pipe()
	defer client.Close()
	go s.handleConnection(srv)

	cmd := &wire.Command{Verb: wire.VerbInfo, Args: []string{}, Opts: map[string]string{}}
	req := flattenTokens(cmd.Encode())

	go func() {
		_, _ = client.Write(req)
	}()

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if !disp.lastReadOnly {
		t.Fatalf("expected read_only=true for a read-only-port server")
	}
}

func TestHandleConnectionClosesOnMalformedFraming(t *testing.T) {
	disp := &fakeDispatcher{reply: wire.EncodeOK()}
	s := New("unused", false, disp, nil)

	client, srv := net.Pipe()
	defer client.Close()
	go s.handleConnection(srv)

	go func() {
		_, _ = client.Write([]byte("not-a-length\r\nXX"))
	}()

	buf := make([]byte, 16)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Read(buf)
	if err == nil {
		t.Fatalf("expected the connection to be closed after malformed framing")
	}
}

func flattenTokens(tokens [][]byte) []byte {
	var out []byte
	for _, t := range tokens {
		out = append(out, t...)
	}
	return out
}
