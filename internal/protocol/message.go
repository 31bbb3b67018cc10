package protocol

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// PeerID identifies a peer for the lifetime of one process run. It is
// generated locally from a cryptographic RNG and never persisted or
// authenticated against any external identity.
type PeerID [PeerIDSize]byte

// NewPeerID draws PeerIDSize bytes from crypto/rand.
func NewPeerID() (PeerID, error) {
	var id PeerID
	if _, err := rand.Read(id[:]); err != nil {
		return PeerID{}, err
	}
	return id, nil
}

// MessageID uniquely identifies one message. It is filled from a random
// (v4) UUID, whose 16-byte payload matches MessageIDSize exactly.
type MessageID [MessageIDSize]byte

// NewMessageID generates a fresh random MessageID.
func NewMessageID() MessageID {
	var id MessageID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

// Header carries the fields common to every message on the wire.
type Header struct {
	Sender    PeerID
	ID        MessageID
	Timestamp uint64
}

func newHeader(sender PeerID) Header {
	return Header{Sender: sender, ID: NewMessageID(), Timestamp: uint64(time.Now().Unix())}
}

// Message is the sum type of everything the codec can encode or decode.
// Concrete variants are distinguished by a type switch, never by
// downcasting through a lossy common struct.
type Message interface {
	Type() MessageType
	Head() Header
}

// ChatMessage carries a plain-text chat line between two peers.
type ChatMessage struct {
	Header
	Content string
}

func NewChatMessage(sender PeerID, content string) *ChatMessage {
	return &ChatMessage{Header: newHeader(sender), Content: content}
}

func (m *ChatMessage) Type() MessageType { return MsgChat }
func (m *ChatMessage) Head() Header      { return m.Header }

// FileRequest announces an incoming file transfer's name and total size.
type FileRequest struct {
	Header
	Filename string
	FileSize uint64
}

func NewFileRequest(sender PeerID, filename string, fileSize uint64) *FileRequest {
	return &FileRequest{Header: newHeader(sender), Filename: filename, FileSize: fileSize}
}

func (m *FileRequest) Type() MessageType { return MsgFileRequest }
func (m *FileRequest) Head() Header      { return m.Header }

// FileChunk carries one ordered slice of a file's bytes.
type FileChunk struct {
	Header
	FileID     string
	ChunkIndex uint32
	Data       []byte
}

func NewFileChunk(sender PeerID, fileID string, index uint32, data []byte) *FileChunk {
	return &FileChunk{Header: newHeader(sender), FileID: fileID, ChunkIndex: index, Data: data}
}

func (m *FileChunk) Type() MessageType { return MsgFileChunk }
func (m *FileChunk) Head() Header      { return m.Header }

// FileComplete marks the end of a transfer, successful or not.
type FileComplete struct {
	Header
	FileID  string
	Success bool
	Err     string
}

func NewFileComplete(sender PeerID, fileID string, success bool, errMsg string) *FileComplete {
	return &FileComplete{Header: newHeader(sender), FileID: fileID, Success: success, Err: errMsg}
}

func (m *FileComplete) Type() MessageType { return MsgFileComplete }
func (m *FileComplete) Head() Header      { return m.Header }

// ConnectionNotification informs a peer of another peer's connection state.
type ConnectionNotification struct {
	Header
	PeerID PeerID
	Status ConnectionStatus
}

func NewConnectionNotification(sender, subject PeerID, status ConnectionStatus) *ConnectionNotification {
	return &ConnectionNotification{Header: newHeader(sender), PeerID: subject, Status: status}
}

func (m *ConnectionNotification) Type() MessageType { return MsgConnectionNotification }
func (m *ConnectionNotification) Head() Header      { return m.Header }

// Ping is a liveness probe with no payload beyond the common header.
type Ping struct {
	Header
}

func NewPing(sender PeerID) *Ping { return &Ping{Header: newHeader(sender)} }

func (m *Ping) Type() MessageType { return MsgPing }
func (m *Ping) Head() Header      { return m.Header }

// Pong answers a Ping.
type Pong struct {
	Header
}

func NewPong(sender PeerID) *Pong { return &Pong{Header: newHeader(sender)} }

func (m *Pong) Type() MessageType { return MsgPong }
func (m *Pong) Head() Header      { return m.Header }
