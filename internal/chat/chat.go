// Package chat is the plain-text messaging collaborator: it subscribes to
// a Transport for inbound ChatMessage frames, sends outbound ones, and
// persists both directions through a store.ChatRepository.
package chat

import (
	"context"
	"encoding/hex"

	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/protocol"
	"github.com/linknet/linknet/internal/store"
	"github.com/linknet/linknet/internal/transport"
	"github.com/sirupsen/logrus"
)

// IncomingFunc is invoked for every chat message received from a peer.
type IncomingFunc func(peer protocol.PeerID, content string)

// Chat wires a Transport to a ChatRepository, keeping message history and
// notifying a UI-level callback of inbound lines.
type Chat struct {
	tr     *transport.Transport
	repo   store.ChatRepository
	logger *logrus.Logger

	onIncoming IncomingFunc
}

// New attaches a Chat instance to tr; it subscribes immediately, so
// construct it before dialing or accepting peers you want it to observe.
// tr may be nil for a Chat that only ever calls Send over sessions handed
// to it directly and never needs to receive on its own.
func New(tr *transport.Transport, repo store.ChatRepository, logger *logrus.Logger) *Chat {
	if logger == nil {
		logger = logging.NewLogger()
	}
	c := &Chat{tr: tr, repo: repo, logger: logger}
	if tr != nil {
		tr.Subscribe(c.handleMessage)
	}
	return c
}

// OnIncoming registers the callback invoked for each received chat line.
func (c *Chat) OnIncoming(fn IncomingFunc) {
	c.onIncoming = fn
}

// handleMessage keys the persisted entry and the incoming callback by
// peerID, the PeerID this side assigned the session the message arrived
// on. The message's own Header.Sender is the remote's self-declared view
// of its end of the same link and carries no meaning in this side's PeerID
// space, so it is not used for identity here.
func (c *Chat) handleMessage(peerID protocol.PeerID, session *transport.Session, msg protocol.Message) {
	chatMsg, ok := msg.(*protocol.ChatMessage)
	if !ok {
		return
	}

	if err := c.repo.Append(store.ChatEntry{
		PeerID:    peerIDKey(peerID),
		Direction: store.DirectionIn,
		Content:   chatMsg.Content,
		Timestamp: int64(chatMsg.Header.Timestamp),
	}); err != nil {
		c.logger.WithError(err).Warn("chat: failed to persist inbound message")
	}

	if c.onIncoming != nil {
		c.onIncoming(peerID, chatMsg.Content)
	}
}

// Send transmits content over session, stamped with the PeerID this side
// assigned that session, and records it as an outbound entry under the
// same ID.
func (c *Chat) Send(ctx context.Context, session *transport.Session, content string) error {
	peerID := session.PeerID()
	msg := protocol.NewChatMessage(peerID, content)
	if err := session.Send(ctx, msg); err != nil {
		return err
	}

	if err := c.repo.Append(store.ChatEntry{
		PeerID:    peerIDKey(peerID),
		Direction: store.DirectionOut,
		Content:   content,
		Timestamp: int64(msg.Header.Timestamp),
	}); err != nil {
		c.logger.WithError(err).Warn("chat: failed to persist outbound message")
	}
	return nil
}

// History returns the full chat history exchanged with peer, oldest first.
func (c *Chat) History(peer protocol.PeerID) ([]store.ChatEntry, error) {
	return c.repo.History(peerIDKey(peer))
}

func peerIDKey(id protocol.PeerID) string {
	return hex.EncodeToString(id[:])
}
