package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linknet/linknet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// SessionState is the two-state lifecycle of a Session: Open until either
// side closes the connection or a terminal I/O error occurs, then Closed
// forever.
type SessionState int32

const (
	SessionOpen SessionState = iota
	SessionClosed
)

func (s SessionState) String() string {
	if s == SessionClosed {
		return "closed"
	}
	return "open"
}

// Session wraps one persistent TCP connection to a peer. Writes are
// serialized through a mutex so concurrent senders never interleave
// frames; a single background goroutine reads and decodes frames and
// hands each one to the owning Transport for fan-out.
type Session struct {
	id     protocol.PeerID
	conn   net.Conn
	codec  *protocol.Codec
	logger *logrus.Logger

	writeMu sync.Mutex
	state   atomic.Int32

	dispatch func(*Session, protocol.Message)
	onClose  func(*Session, error)
}

// newSession wraps conn under the PeerID this side has already generated
// for it. id is assigned once, at construction, and never changes for the
// life of the Session — see Transport.adopt.
func newSession(id protocol.PeerID, conn net.Conn, logger *logrus.Logger, dispatch func(*Session, protocol.Message), onClose func(*Session, error)) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		codec:    protocol.NewCodec(),
		logger:   logger,
		dispatch: dispatch,
		onClose:  onClose,
	}
}

// run is the session's read loop. A malformed frame body (unknown type
// tag, truncated field, length mismatch) is reported and discarded without
// killing the session — only an I/O-level failure on the underlying
// connection (reset, EOF, deadline) is terminal.
func (s *Session) run() {
	for {
		msg, err := s.codec.Decode(s.conn)
		if err != nil {
			if isFrameDecodeError(err) {
				s.logger.WithError(err).Warn("transport: discarding malformed frame")
				continue
			}
			s.closeWithError(err)
			return
		}
		s.dispatch(s, msg)
	}
}

// isFrameDecodeError reports whether err came from decoding a frame's body
// rather than from reading it off the wire. The length prefix already
// tells Decode exactly how many bytes the frame occupies, so a body that
// fails to parse still leaves the connection's read position intact —
// there is no reason to tear down the session over it.
func isFrameDecodeError(err error) bool {
	return errors.Is(err, protocol.ErrShortBuffer) ||
		errors.Is(err, protocol.ErrUnknownType) ||
		errors.Is(err, protocol.ErrLengthMismatch)
}

// Send encodes and writes msg, blocking other writers on this session
// until the frame is fully written. If ctx carries a deadline it is
// applied to the underlying write.
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	if s.State() == SessionClosed {
		return io.ErrClosedPipe
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	if err := s.codec.Encode(s.conn, msg); err != nil {
		s.closeWithError(err)
		return err
	}
	return nil
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// PeerID returns the PeerID this side assigned to the session when it was
// established. It is a link-local label: the remote end has independently
// assigned its own, unrelated PeerID to the same connection.
func (s *Session) PeerID() protocol.PeerID {
	return s.id
}

func (s *Session) Close() error {
	return s.closeWithError(nil)
}

func (s *Session) closeWithError(err error) error {
	if !s.state.CompareAndSwap(int32(SessionOpen), int32(SessionClosed)) {
		return nil
	}
	closeErr := s.conn.Close()
	if s.onClose != nil {
		s.onClose(s, err)
	}
	if err != nil {
		return err
	}
	return closeErr
}
