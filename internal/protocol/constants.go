// Package protocol implements LinkNet's wire codec: the tagged message
// types exchanged between peers and their fixed, big-endian binary layout.
package protocol

const (
	// PeerIDSize is the length in bytes of a PeerId.
	PeerIDSize = 32
	// MessageIDSize is the length in bytes of a MessageId.
	MessageIDSize = 16
	// HeaderSize is the fixed portion of every message body: type tag (1) +
	// sender PeerId (32) + MessageId (16) + timestamp (8).
	HeaderSize = 1 + PeerIDSize + MessageIDSize + 8
	// LengthPrefixSize is the size of the frame's leading length field.
	LengthPrefixSize = 4
	// DefaultChunkSize is the payload size used by FileChunk messages.
	DefaultChunkSize = 16 * 1024
)

// MessageType tags a message body's payload shape. Values match the
// numbering of the original LinkNet MessageType enum, minus the variants
// this implementation drops: FILE_TRANSFER_RESPONSE was declared upstream
// but never wired to a payload, and PEER_DISCOVERY travels over UDP
// multicast rather than this TCP wire format.
type MessageType uint8

const (
	MsgChat                   MessageType = 0
	MsgFileRequest            MessageType = 1
	MsgFileChunk              MessageType = 3
	MsgFileComplete           MessageType = 4
	MsgPing                   MessageType = 6
	MsgPong                   MessageType = 7
	MsgConnectionNotification MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MsgChat:
		return "CHAT"
	case MsgFileRequest:
		return "FILE_REQUEST"
	case MsgFileChunk:
		return "FILE_CHUNK"
	case MsgFileComplete:
		return "FILE_COMPLETE"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgConnectionNotification:
		return "CONNECTION_NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// ConnectionStatus mirrors the status a peer can be in from another peer's
// point of view; it travels on the wire inside ConnectionNotification.
type ConnectionStatus uint8

const (
	Disconnected ConnectionStatus = 0
	Connecting   ConnectionStatus = 1
	Connected    ConnectionStatus = 2
	StatusError  ConnectionStatus = 3
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
