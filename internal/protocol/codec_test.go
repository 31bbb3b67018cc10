package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func testPeerID(seed byte) PeerID {
	var id PeerID
	for i := range id {
		id[i] = seed
	}
	return id
}

func TestCodecChatMessageRoundTrip(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	msg := NewChatMessage(testPeerID(1), "hello over the LAN")
	if err := codec.Encode(&buf, msg); err != nil {
		t.Fatalf("Encode ChatMessage failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode ChatMessage failed: %v", err)
	}

	got, ok := decoded.(*ChatMessage)
	if !ok {
		t.Fatalf("expected *ChatMessage, got %T", decoded)
	}
	if got.Content != msg.Content {
		t.Errorf("content mismatch: got %q, want %q", got.Content, msg.Content)
	}
	if got.Header.Sender != msg.Header.Sender {
		t.Errorf("sender mismatch")
	}
	if got.Header.ID != msg.Header.ID {
		t.Errorf("message id mismatch")
	}
}

func TestCodecFileRequestRoundTrip(t *testing.T) {
	codec := NewCodec()

	msg := NewFileRequest(testPeerID(2), "photo.jpg", 4_194_304)
	data, err := codec.EncodeToBytes(msg)
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}

	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	got, ok := decoded.(*FileRequest)
	if !ok {
		t.Fatalf("expected *FileRequest, got %T", decoded)
	}
	if got.Filename != msg.Filename || got.FileSize != msg.FileSize {
		t.Errorf("payload mismatch: got %+v, want %+v", got, msg)
	}
}

func TestCodecFileChunkRoundTrip(t *testing.T) {
	codec := NewCodec()

	chunk := make([]byte, DefaultChunkSize)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	msg := NewFileChunk(testPeerID(3), "transfer-1", 7, chunk)

	data, err := codec.EncodeToBytes(msg)
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}
	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	got, ok := decoded.(*FileChunk)
	if !ok {
		t.Fatalf("expected *FileChunk, got %T", decoded)
	}
	if got.ChunkIndex != 7 || got.FileID != "transfer-1" {
		t.Errorf("header fields mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, chunk) {
		t.Errorf("chunk data mismatch")
	}
}

func TestCodecFileCompleteRoundTrip(t *testing.T) {
	codec := NewCodec()

	msg := NewFileComplete(testPeerID(4), "transfer-2", false, "peer closed connection")
	data, err := codec.EncodeToBytes(msg)
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}
	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	got, ok := decoded.(*FileComplete)
	if !ok {
		t.Fatalf("expected *FileComplete, got %T", decoded)
	}
	if got.Success || got.Err != msg.Err {
		t.Errorf("payload mismatch: got %+v, want %+v", got, msg)
	}
}

func TestCodecConnectionNotificationRoundTrip(t *testing.T) {
	codec := NewCodec()

	msg := NewConnectionNotification(testPeerID(5), testPeerID(6), Connected)
	data, err := codec.EncodeToBytes(msg)
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}
	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	got, ok := decoded.(*ConnectionNotification)
	if !ok {
		t.Fatalf("expected *ConnectionNotification, got %T", decoded)
	}
	if got.PeerID != msg.PeerID || got.Status != Connected {
		t.Errorf("payload mismatch: got %+v", got)
	}
}

func TestCodecPingPong(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	sender := testPeerID(9)
	if err := codec.Encode(&buf, NewPing(sender)); err != nil {
		t.Fatalf("Encode Ping failed: %v", err)
	}
	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Ping failed: %v", err)
	}
	if _, ok := decoded.(*Ping); !ok {
		t.Errorf("expected *Ping, got %T", decoded)
	}

	buf.Reset()
	if err := codec.Encode(&buf, NewPong(sender)); err != nil {
		t.Fatalf("Encode Pong failed: %v", err)
	}
	decoded, err = codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Pong failed: %v", err)
	}
	if _, ok := decoded.(*Pong); !ok {
		t.Errorf("expected *Pong, got %T", decoded)
	}
}

func TestCodecShortBufferDoesNotPanic(t *testing.T) {
	codec := NewCodec()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10000; i++ {
		n := rng.Intn(HeaderSize)
		junk := make([]byte, n)
		rng.Read(junk)

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("DecodeBody panicked on %d-byte input: %v", n, r)
				}
			}()
			if _, err := codec.DecodeBody(junk); err == nil {
				t.Fatalf("expected an error decoding %d-byte truncated buffer", n)
			}
		}()
	}
}

func TestCodecUnknownTypeReturnsError(t *testing.T) {
	codec := NewCodec()

	body := make([]byte, HeaderSize)
	body[0] = 0xFF // no MessageType is registered at this tag

	if _, err := codec.DecodeBody(body); err != ErrUnknownType {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestCodecRandomValidMessagesRoundTrip(t *testing.T) {
	codec := NewCodec()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 10000; i++ {
		sender := testPeerID(byte(i))
		var msg Message
		switch i % 5 {
		case 0:
			msg = NewChatMessage(sender, randomString(rng, 64))
		case 1:
			msg = NewFileRequest(sender, randomString(rng, 32), rng.Uint64())
		case 2:
			data := make([]byte, rng.Intn(256))
			rng.Read(data)
			msg = NewFileChunk(sender, randomString(rng, 16), rng.Uint32(), data)
		case 3:
			msg = NewFileComplete(sender, randomString(rng, 16), rng.Intn(2) == 0, randomString(rng, 32))
		case 4:
			msg = NewConnectionNotification(sender, testPeerID(byte(i+1)), ConnectionStatus(rng.Intn(4)))
		}

		data, err := codec.EncodeToBytes(msg)
		if err != nil {
			t.Fatalf("iteration %d: EncodeToBytes failed: %v", i, err)
		}
		decoded, err := codec.DecodeFromBytes(data)
		if err != nil {
			t.Fatalf("iteration %d: DecodeFromBytes failed: %v", i, err)
		}
		if decoded.Type() != msg.Type() {
			t.Fatalf("iteration %d: type mismatch: got %v, want %v", i, decoded.Type(), msg.Type())
		}
	}
}

func randomString(rng *rand.Rand, maxLen int) string {
	n := rng.Intn(maxLen + 1)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return string(b)
}
