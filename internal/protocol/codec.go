package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Codec encodes and decodes Messages to LinkNet's wire format: a 4-byte
// big-endian length prefix, a 57-byte fixed header, and a type-specific
// payload. It holds no state and is safe for concurrent use.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Encode writes one framed message to w: length prefix, then body.
func (c *Codec) Encode(w io.Writer, msg Message) error {
	body, err := c.encodeBody(msg)
	if err != nil {
		return err
	}
	var lenBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// Decode reads one framed message from r, blocking until a full frame or
// an I/O error arrives.
func (c *Codec) Decode(r io.Reader) (Message, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return c.DecodeBody(body)
}

// EncodeToBytes returns the full frame (length prefix + body) for msg.
func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFromBytes decodes one full frame previously produced by EncodeToBytes.
func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	return c.Decode(bytes.NewReader(data))
}

func (c *Codec) encodeBody(msg Message) ([]byte, error) {
	head := msg.Head()

	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Type()))
	buf.Write(head.Sender[:])
	buf.Write(head.ID[:])
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], head.Timestamp)
	buf.Write(ts[:])

	switch m := msg.(type) {
	case *ChatMessage:
		writeString(&buf, m.Content)
	case *FileRequest:
		writeUint64(&buf, m.FileSize)
		writeString(&buf, m.Filename)
	case *FileChunk:
		writeString(&buf, m.FileID)
		writeUint32(&buf, m.ChunkIndex)
		writeBytes(&buf, m.Data)
	case *FileComplete:
		writeString(&buf, m.FileID)
		if m.Success {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeString(&buf, m.Err)
	case *ConnectionNotification:
		buf.Write(m.PeerID[:])
		buf.WriteByte(byte(m.Status))
	case *Ping:
	case *Pong:
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", msg)
	}
	return buf.Bytes(), nil
}

// DecodeBody decodes a single message body (without the length prefix).
func (c *Codec) DecodeBody(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrShortBuffer
	}

	typ := MessageType(data[0])
	var head Header
	off := 1
	copy(head.Sender[:], data[off:off+PeerIDSize])
	off += PeerIDSize
	copy(head.ID[:], data[off:off+MessageIDSize])
	off += MessageIDSize
	head.Timestamp = binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	r := &reader{data: data, off: off}

	switch typ {
	case MsgChat:
		content, err := r.readString()
		if err != nil {
			return nil, err
		}
		return &ChatMessage{Header: head, Content: content}, nil

	case MsgFileRequest:
		size, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		return &FileRequest{Header: head, Filename: name, FileSize: size}, nil

	case MsgFileChunk:
		fileID, err := r.readString()
		if err != nil {
			return nil, err
		}
		index, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		chunk, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		return &FileChunk{Header: head, FileID: fileID, ChunkIndex: index, Data: chunk}, nil

	case MsgFileComplete:
		fileID, err := r.readString()
		if err != nil {
			return nil, err
		}
		successByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		errMsg, err := r.readString()
		if err != nil {
			return nil, err
		}
		return &FileComplete{Header: head, FileID: fileID, Success: successByte != 0, Err: errMsg}, nil

	case MsgConnectionNotification:
		var subject PeerID
		subjectBytes, err := r.readN(PeerIDSize)
		if err != nil {
			return nil, err
		}
		copy(subject[:], subjectBytes)
		statusByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		return &ConnectionNotification{Header: head, PeerID: subject, Status: ConnectionStatus(statusByte)}, nil

	case MsgPing:
		return &Ping{Header: head}, nil

	case MsgPong:
		return &Pong{Header: head}, nil

	default:
		return nil, ErrUnknownType
	}
}

// reader walks a decoded message body's variable-length payload.
type reader struct {
	data []byte
	off  int
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, ErrLengthMismatch
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) readUint64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return r.readN(int(n))
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}
