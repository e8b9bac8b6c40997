// Package server runs the accept loops for the primary (read-write)
// and read-only TCP ports, grounded in the teacher's
// rpc/transport/base accept-loop-per-connection pattern.
package server

import (
	"io"
	"net"
	"sync"

	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/wire"
)

// dispatcher is the subset of *dispatch.Dispatcher the server needs.
type dispatcher interface {
	Dispatch(cmd *wire.Command, readOnly bool, bypassReadOnly bool) []byte
}

// followerAcceptor receives freshly accepted replication connections
// when this server is acting as a leader.
type followerAcceptor interface {
	AddFollower(conn net.Conn)
}

// Server owns one listener and serves either client connections (in
// read-write or read-only mode) or, for the replication listener,
// registers each accepted connection as a follower sink.
type Server struct {
	addr       string
	readOnly   bool
	dispatcher dispatcher
	log        *logging.Logger

	// replication, if non-nil, makes this listener the leader's
	// follower-accept endpoint instead of a client port. When set,
	// dispatcher is ignored for this listener.
	replication followerAcceptor

	mu       sync.Mutex
	listener net.Listener
}

func New(addr string, readOnly bool, d dispatcher, log *logging.Logger) *Server {
	if log == nil {
		log = logging.New("server", logging.Info)
	}
	return &Server{addr: addr, readOnly: readOnly, dispatcher: d, log: log.Named("server")}
}

// NewReplicationListener builds a server variant that hands every
// accepted connection to a Leader as a new follower sink rather than
// serving client commands on it.
func NewReplicationListener(addr string, leader followerAcceptor, log *logging.Logger) *Server {
	if log == nil {
		log = logging.New("server", logging.Info)
	}
	return &Server{addr: addr, replication: leader, log: log.Named("server")}
}

// ListenAndServe binds the listener and accepts connections until
// Close is called, spawning one goroutine per connection.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Infof("listening on %s (read_only=%v replication=%v)", s.addr, s.readOnly, s.replication != nil)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		if s.replication != nil {
			s.replication.AddFollower(conn)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	dec := wire.NewDecoder()
	buf := make([]byte, 64*1024)
	var queue [][]byte

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			toks, decErr := dec.Feed(buf[:n])
			if decErr != nil {
				s.log.Warnf("malformed request from %s: %v", conn.RemoteAddr(), decErr)
				return
			}
			queue = append(queue, toks...)
			queue = s.serveReady(conn, queue)
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debugf("connection %s closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

// serveReady dispatches every complete command currently buffered,
// writing one reply per command, and returns the remaining
// (incomplete) tail of the queue.
func (s *Server) serveReady(conn net.Conn, queue [][]byte) [][]byte {
	for {
		result, needMore := wire.TryParse(queue)
		if needMore {
			return queue
		}

		var reply []byte
		if result.Err != nil {
			reply = wire.EncodeError(result.Err.Msg)
		} else {
			reply = s.dispatcher.Dispatch(result.Cmd, s.readOnly, false)
		}
		if _, err := conn.Write(reply); err != nil {
			s.log.Warnf("write to %s failed: %v", conn.RemoteAddr(), err)
			return nil
		}
		queue = queue[result.Consumed:]
	}
}
