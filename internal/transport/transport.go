// Package transport implements LinkNet's TCP session layer: accepting and
// dialing persistent connections, framing messages through
// internal/protocol, and fanning out decoded messages, connection state
// changes, and errors to any number of subscribers.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// ErrPeerNotConnected is returned by any peer-ID-addressed operation when
// no Session for that PeerID is currently registered.
var ErrPeerNotConnected = errors.New("transport: peer not connected")

// PeerInfo is a snapshot of one registered peer's connection.
type PeerInfo struct {
	PeerID     protocol.PeerID
	RemoteAddr string
}

// MessageSink receives every message decoded from any Session the owning
// Transport has open, tagged with the PeerID this side assigned to that
// session.
type MessageSink func(peerID protocol.PeerID, session *Session, msg protocol.Message)

// ConnectionSink receives a notification whenever a Session transitions
// between Connected and Disconnected.
type ConnectionSink func(peerID protocol.PeerID, session *Session, status protocol.ConnectionStatus)

// ErrorSink receives the terminal error, if any, that closed a Session.
type ErrorSink func(peerID protocol.PeerID, session *Session, err error)

// Transport owns one TCP listener and the set of currently open Sessions.
// Earlier revisions of this layer exposed single-slot callback setters
// (SetMessageCallback and friends); those clobber one another the moment a
// second collaborator needs the same events, so subscribers are appended
// to a list instead — chat and file transfer both watch the same
// Transport without stepping on each other.
type Transport struct {
	listener net.Listener
	logger   *logrus.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	byPeer   map[protocol.PeerID]*Session

	subMu           sync.RWMutex
	messageSinks    []MessageSink
	connectionSinks []ConnectionSink
	errorSinks      []ErrorSink
}

// NewTransport starts listening on addr ("host:port", or ":0" for an
// ephemeral port). A nil logger falls back to logging.NewLogger(). Every
// Session this Transport adopts, whether dialed or accepted, gets its own
// freshly generated PeerID at adoption time; there is no single per-process
// identity.
func NewTransport(addr string, logger *logrus.Logger) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Transport{
		listener: ln,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		byPeer:   make(map[protocol.PeerID]*Session),
	}, nil
}

func (t *Transport) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// Accept blocks until an inbound connection arrives, ctx is cancelled, or
// the listener is closed.
func (t *Transport) Accept(ctx context.Context) (*Session, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return t.adopt(r.conn)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dial opens a new outbound Session to addr.
func (t *Transport) Dial(ctx context.Context, addr string) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return t.adopt(conn)
}

// adopt assigns conn a freshly generated PeerID, registers the resulting
// Session under that ID, and starts its read loop. Registration happens
// synchronously, before adopt returns, so both the connection callback and
// Send/Disconnect/ConnectedPeers see the peer immediately — there is no
// window where the TCP connection is open but the Session isn't yet
// addressable by PeerID.
func (t *Transport) adopt(conn net.Conn) (*Session, error) {
	peerID, err := protocol.NewPeerID()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	session := newSession(peerID, conn, t.logger, t.dispatchMessage, t.dispatchClose)

	t.mu.Lock()
	t.sessions[session] = struct{}{}
	t.byPeer[peerID] = session
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{"remote": session.RemoteAddr(), "peer": peerID}).Info("transport: session opened")

	go session.run()
	t.dispatchConnection(peerID, session, protocol.Connected)

	go func() {
		notify := protocol.NewConnectionNotification(peerID, peerID, protocol.Connected)
		if err := session.Send(context.Background(), notify); err != nil {
			t.logger.WithError(err).Debug("transport: failed to send connection notification")
		}
	}()

	return session, nil
}

func (t *Transport) dispatchMessage(session *Session, msg protocol.Message) {
	t.subMu.RLock()
	sinks := append([]MessageSink(nil), t.messageSinks...)
	t.subMu.RUnlock()
	peerID := session.PeerID()
	for _, sink := range sinks {
		sink(peerID, session, msg)
	}
}

func (t *Transport) dispatchConnection(peerID protocol.PeerID, session *Session, status protocol.ConnectionStatus) {
	t.subMu.RLock()
	sinks := append([]ConnectionSink(nil), t.connectionSinks...)
	t.subMu.RUnlock()
	for _, sink := range sinks {
		sink(peerID, session, status)
	}
}

func (t *Transport) dispatchClose(session *Session, err error) {
	peerID := session.PeerID()

	t.mu.Lock()
	delete(t.sessions, session)
	if t.byPeer[peerID] == session {
		delete(t.byPeer, peerID)
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.WithError(err).WithField("remote", session.RemoteAddr()).Warn("transport: session closed")
		t.subMu.RLock()
		sinks := append([]ErrorSink(nil), t.errorSinks...)
		t.subMu.RUnlock()
		for _, sink := range sinks {
			sink(peerID, session, err)
		}
	}
	t.dispatchConnection(peerID, session, protocol.Disconnected)
}

// Subscribe registers sink to receive every message decoded from any
// session this Transport owns.
func (t *Transport) Subscribe(sink MessageSink) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.messageSinks = append(t.messageSinks, sink)
}

// OnConnection registers sink to receive connect/disconnect notifications.
func (t *Transport) OnConnection(sink ConnectionSink) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.connectionSinks = append(t.connectionSinks, sink)
}

// OnError registers sink to receive the terminal error of any session that
// closes abnormally.
func (t *Transport) OnError(sink ErrorSink) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.errorSinks = append(t.errorSinks, sink)
}

// Broadcast sends msg to every currently open session. It attempts
// delivery to all of them even if one fails, returning the first error.
func (t *Transport) Broadcast(ctx context.Context, msg protocol.Message) error {
	var firstErr error
	for _, s := range t.ConnectedSessions() {
		if err := s.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Send delivers msg to the Session currently registered for peerID. Every
// Session is registered at adoption time, before Dial/Accept returns, so
// there is no window after a successful Dial/Accept where its own PeerID
// isn't yet addressable.
func (t *Transport) Send(ctx context.Context, peerID protocol.PeerID, msg protocol.Message) error {
	t.mu.Lock()
	session, ok := t.byPeer[peerID]
	t.mu.Unlock()
	if !ok {
		return ErrPeerNotConnected
	}
	return session.Send(ctx, msg)
}

// Disconnect closes the Session registered for peerID, if any.
func (t *Transport) Disconnect(peerID protocol.PeerID) error {
	t.mu.Lock()
	session, ok := t.byPeer[peerID]
	t.mu.Unlock()
	if !ok {
		return ErrPeerNotConnected
	}
	return session.Close()
}

// ConnectedPeers returns a snapshot of every currently open Session, keyed
// by the PeerID this side assigned it at adoption time.
func (t *Transport) ConnectedPeers() []PeerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PeerInfo, 0, len(t.byPeer))
	for peerID, session := range t.byPeer {
		out = append(out, PeerInfo{PeerID: peerID, RemoteAddr: session.RemoteAddr()})
	}
	return out
}

// ConnectedSessions returns a snapshot of the currently open sessions.
func (t *Transport) ConnectedSessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Close closes every open session and stops accepting new connections.
func (t *Transport) Close() error {
	for _, s := range t.ConnectedSessions() {
		_ = s.Close()
	}
	return t.listener.Close()
}
