package filetransfer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/protocol"
	"github.com/linknet/linknet/internal/transport"
	"github.com/stretchr/testify/require"
)

func newLinkedSessions(t *testing.T) (*transport.Transport, *transport.Transport, *transport.Session, *transport.Session) {
	t.Helper()

	server, err := transport.NewTransport(":0", logging.NewSilentLogger())
	require.NoError(t, err)
	client, err := transport.NewTransport(":0", logging.NewSilentLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *transport.Session, 1)
	go func() {
		s, err := server.Accept(ctx)
		if err == nil {
			accepted <- s
		}
	}()

	clientSession, err := client.Dial(ctx, server.LocalAddr().String())
	require.NoError(t, err)

	var serverSession *transport.Session
	select {
	case serverSession = <-accepted:
	case <-ctx.Done():
		t.Fatal("timeout accepting connection")
	}

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return server, client, serverSession, clientSession
}

func TestFileTransferHappyPath(t *testing.T) {
	server, client, serverSession, clientSession := newLinkedSessions(t)

	downloadDir := t.TempDir()
	receiverMgr := New(server, 8, downloadDir, logging.NewSilentLogger())

	receiverDone := make(chan Record, 1)
	receiverMgr.OnCompleted(func(r Record, err error) {
		if err == nil {
			receiverDone <- r
		}
	})

	senderMgr := New(client, 8, "", logging.NewSilentLogger())
	senderDone := make(chan Record, 1)
	senderMgr.OnCompleted(func(r Record, err error) {
		if err == nil {
			senderDone <- r
		}
	})

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "note.txt")
	content := []byte("this file is exactly some bytes long for chunking")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := senderMgr.SendFile(ctx, clientSession, srcPath)
	require.NoError(t, err)

	select {
	case record := <-receiverDone:
		require.Equal(t, Completed, record.Status)
		require.Equal(t, serverSession.PeerID(), record.Peer)
	case <-ctx.Done():
		t.Fatal("timeout waiting for receiver-side completion")
	}

	select {
	case record := <-senderDone:
		require.Equal(t, Completed, record.Status)
		require.Equal(t, srcPath, record.FileID)
		require.Equal(t, clientSession.PeerID(), record.Peer)
	case <-ctx.Done():
		t.Fatal("timeout waiting for sender-side completion ack")
	}

	got, err := os.ReadFile(filepath.Join(downloadDir, "note.txt"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, content), "content mismatch: got %q, want %q", got, content)
}

func TestFileTransferRejection(t *testing.T) {
	server, client, _, clientSession := newLinkedSessions(t)

	downloadDir := t.TempDir()
	receiverMgr := New(server, 8, downloadDir, logging.NewSilentLogger())
	receiverMgr.OnRequest(func(r Record) bool { return false })

	receiverCompleted := make(chan Record, 1)
	receiverMgr.OnCompleted(func(r Record, err error) {
		receiverCompleted <- r
	})

	senderMgr := New(client, 8, "", logging.NewSilentLogger())
	senderFailed := make(chan error, 1)
	senderMgr.OnCompleted(func(r Record, err error) {
		if r.Status == Failed {
			senderFailed <- err
		}
	})

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "rejected.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("not wanted"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := senderMgr.SendFile(ctx, clientSession, srcPath)
	require.NoError(t, err)

	select {
	case err := <-senderFailed:
		require.Error(t, err, "sender should learn the transfer was rejected")
	case <-ctx.Done():
		t.Fatal("timeout waiting for sender to learn of rejection")
	}

	select {
	case r := <-receiverCompleted:
		t.Fatalf("receiver declined the transfer, its own OnCompleted should not fire: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}

	_, err = os.Stat(filepath.Join(downloadDir, "rejected.txt"))
	require.True(t, os.IsNotExist(err), "expected rejected transfer to not write a file")
}

func TestDuplicateChunkIsIdempotent(t *testing.T) {
	_, _, serverSession, _ := newLinkedSessions(t)

	receiverMgr := New(nil, 4, t.TempDir(), logging.NewSilentLogger())

	senderID := serverSession.PeerID()

	// Total size is bigger than one chunk so the transfer stays open across
	// the duplicate delivery instead of completing on the first chunk.
	req := protocol.NewFileRequest(senderID, "dup.bin", 8)
	receiverMgr.handleRequest(senderID, serverSession, req)

	chunk := protocol.NewFileChunk(senderID, "dup.bin", 0, []byte("data"))
	key := wireKey{session: serverSession, filename: "dup.bin"}

	receiverMgr.handleChunk(serverSession, chunk)
	receiverMgr.handleChunk(serverSession, chunk)

	receiverMgr.mu.Lock()
	transferred := receiverMgr.incoming[key].record.BytesTransferred
	receiverMgr.mu.Unlock()
	require.EqualValues(t, 4, transferred, "expected duplicate chunk to be counted once")
}
