// Package filetransfer implements chunked file sending and receiving on
// top of a transport.Transport: FileRequest announces a transfer,
// FileChunk streams its bytes, and FileComplete closes it out.
package filetransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/protocol"
	"github.com/linknet/linknet/internal/transport"
	"github.com/sirupsen/logrus"
)

// wireKey identifies one transfer on the wire by the session it travels
// over plus its filename, since FileRequest carries no transfer identifier
// of its own — FileChunk and FileComplete correlate back to it purely by
// filename, and a Session is always scoped to exactly one peer connection.
type wireKey struct {
	session  *transport.Session
	filename string
}

// Status is where a transfer currently stands.
type Status uint8

const (
	Pending Status = iota
	InProgress
	Completed
	Failed
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case InProgress:
		return "IN_PROGRESS"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Direction distinguishes a transfer this instance is sending from one it
// is receiving.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

// Record is a snapshot of one transfer's state, safe to copy and hand to
// callbacks.
type Record struct {
	FileID           string
	Filename         string
	Peer             protocol.PeerID
	TotalSize        uint64
	BytesTransferred uint64
	Status           Status
	Direction        Direction
}

var ErrTransferNotFound = errors.New("filetransfer: transfer not found")

// ChunkInfo describes one chunk's position within a file, for callers that
// want to render per-chunk progress rather than just a running byte total.
// FileChunk itself only carries an index; ChunkInfo derives the rest from
// the Manager's chunk size.
type ChunkInfo struct {
	Index  uint32
	Offset int64
	Size   int
}

// chunkInfo computes the ChunkInfo for index given n bytes actually read
// for that chunk (the final chunk of a file is usually shorter than
// chunkSize).
func (m *Manager) chunkInfo(index uint32, n int) ChunkInfo {
	return ChunkInfo{
		Index:  index,
		Offset: int64(index) * int64(m.chunkSize),
		Size:   n,
	}
}

// ProgressFunc is called after each chunk is sent or received.
type ProgressFunc func(Record)

// CompletedFunc is called once a transfer reaches a terminal status.
type CompletedFunc func(Record, error)

// RequestFunc decides whether an inbound FileRequest should be accepted.
// Returning false sends the sender a failing FileComplete ("rejected");
// any chunks that still arrive for the refused transfer are discarded
// rather than written to disk.
type RequestFunc func(Record) bool

type outgoingTransfer struct {
	record  Record
	session *transport.Session
	wireKey wireKey
}

type incomingTransfer struct {
	record   Record
	session  *transport.Session
	file     *os.File
	accepted bool
	seen     map[uint32]struct{}
}

// Manager coordinates every outgoing and incoming transfer for one local
// peer identity. Outgoing transfers are keyed by local path, matching the
// caller-facing identifier CancelTransfer and GetOngoingTransfers use;
// outgoingByWire and incoming are keyed by wireKey, since that is the only
// identifier the wire protocol itself carries once a FileRequest has gone
// out.
type Manager struct {
	tr          *transport.Transport
	chunkSize   int
	downloadDir string
	logger      *logrus.Logger

	mu             sync.Mutex
	outgoing       map[string]*outgoingTransfer
	outgoingByWire map[wireKey]*outgoingTransfer
	incoming       map[wireKey]*incomingTransfer

	onProgress  ProgressFunc
	onCompleted CompletedFunc
	onRequest   RequestFunc
}

// New attaches a Manager to tr, subscribing to inbound FileRequest,
// FileChunk, and FileComplete messages. tr may be nil for a Manager that
// only ever calls SendFile over sessions handed to it directly.
func New(tr *transport.Transport, chunkSize int, downloadDir string, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logging.NewLogger()
	}
	m := &Manager{
		tr:             tr,
		chunkSize:      chunkSize,
		downloadDir:    downloadDir,
		logger:         logger,
		outgoing:       make(map[string]*outgoingTransfer),
		outgoingByWire: make(map[wireKey]*outgoingTransfer),
		incoming:       make(map[wireKey]*incomingTransfer),
	}
	if tr != nil {
		tr.Subscribe(m.handleMessage)
	}
	return m
}

func (m *Manager) OnProgress(fn ProgressFunc)   { m.onProgress = fn }
func (m *Manager) OnCompleted(fn CompletedFunc) { m.onCompleted = fn }
func (m *Manager) OnRequest(fn RequestFunc)     { m.onRequest = fn }

// SendFile announces path over session and then streams it in chunkSize
// pieces, starting immediately once the FileRequest write succeeds — there
// is no separate accept handshake message on this wire. The returned
// identifier is path itself: it is what CancelTransfer and
// GetOngoingTransfers use, since the wire protocol has no transfer ID of
// its own for the receiver to hand back. Every message this transfer sends
// is stamped with the PeerID this side assigned session.
func (m *Manager) SendFile(ctx context.Context, session *transport.Session, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return "", err
	}

	peerID := session.PeerID()
	filename := filepath.Base(path)
	request := protocol.NewFileRequest(peerID, filename, uint64(info.Size()))
	key := wireKey{session: session, filename: filename}

	record := Record{
		FileID:    path,
		Filename:  filename,
		Peer:      peerID,
		TotalSize: uint64(info.Size()),
		Status:    Pending,
		Direction: Outgoing,
	}

	t := &outgoingTransfer{record: record, session: session, wireKey: key}

	m.mu.Lock()
	m.outgoing[path] = t
	m.outgoingByWire[key] = t
	m.mu.Unlock()

	if err := session.Send(ctx, request); err != nil {
		_ = f.Close()
		m.finishOutgoing(path, Failed, err)
		return "", err
	}

	go func() {
		defer f.Close()
		m.streamChunks(ctx, session, path, f)
	}()
	return path, nil
}

// streamChunks writes every chunk of f to session and returns at EOF
// without settling the transfer: whether it counts as Completed or Failed
// is decided by the peer's own FileComplete, delivered to handleComplete,
// not by this loop reaching local EOF. A failure here still sends a
// failing FileComplete so the peer's incoming record does not hang open.
func (m *Manager) streamChunks(ctx context.Context, session *transport.Session, path string, f *os.File) {
	m.setOutgoingStatus(path, InProgress)

	peerID := session.PeerID()
	buf := make([]byte, m.chunkSize)
	var index uint32
	var transferred uint64

	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := protocol.NewFileChunk(peerID, m.outgoingFileID(path), index, append([]byte(nil), buf[:n]...))
			if sendErr := session.Send(ctx, chunk); sendErr != nil {
				m.finishOutgoing(path, Failed, sendErr)
				return
			}
			info := m.chunkInfo(index, n)
			transferred += uint64(n)
			index++
			m.logger.WithFields(logrus.Fields{
				"path":   path,
				"index":  info.Index,
				"offset": info.Offset,
				"size":   info.Size,
			}).Trace("filetransfer: chunk sent")
			m.reportOutgoingProgress(path, transferred)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			m.finishOutgoing(path, Failed, err)
			complete := protocol.NewFileComplete(peerID, m.outgoingFileID(path), false, err.Error())
			_ = session.Send(ctx, complete)
			return
		}
	}
}

// outgoingFileID returns the wire-level filename identifier for an
// outgoing transfer tracked by local path, since FileChunk and
// FileComplete carry the filename rather than the path.
func (m *Manager) outgoingFileID(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.outgoing[path]; ok {
		return t.record.Filename
	}
	return filepath.Base(path)
}

func (m *Manager) reportOutgoingProgress(fileID string, transferred uint64) {
	m.mu.Lock()
	t, ok := m.outgoing[fileID]
	if ok {
		t.record.BytesTransferred = transferred
	}
	record := Record{}
	if ok {
		record = t.record
	}
	m.mu.Unlock()

	if ok {
		m.logger.WithFields(logrus.Fields{
			"file_id":     fileID,
			"transferred": humanize.Bytes(transferred),
			"total":       humanize.Bytes(record.TotalSize),
		}).Debug("filetransfer: sent chunk")
		if m.onProgress != nil {
			m.onProgress(record)
		}
	}
}

func (m *Manager) setOutgoingStatus(fileID string, status Status) {
	m.mu.Lock()
	if t, ok := m.outgoing[fileID]; ok {
		t.record.Status = status
	}
	m.mu.Unlock()
}

func (m *Manager) finishOutgoing(path string, status Status, err error) {
	m.mu.Lock()
	t, ok := m.outgoing[path]
	if ok {
		t.record.Status = status
		delete(m.outgoing, path)
		delete(m.outgoingByWire, t.wireKey)
	}
	m.mu.Unlock()

	if ok && m.onCompleted != nil {
		m.onCompleted(t.record, err)
	}
}

func (m *Manager) handleMessage(peerID protocol.PeerID, session *transport.Session, msg protocol.Message) {
	switch typed := msg.(type) {
	case *protocol.FileRequest:
		m.handleRequest(peerID, session, typed)
	case *protocol.FileChunk:
		m.handleChunk(session, typed)
	case *protocol.FileComplete:
		m.handleComplete(session, typed)
	}
}

// handleRequest decides whether to accept an inbound transfer and, when it
// rejects one, tells the peer immediately by sending a failing
// FileComplete back over session — the sender otherwise has no way to
// learn its transfer was refused until it exhausts its own local read
// loop, well past when the receiver already knew. Record.Peer is peerID,
// the PeerID this side assigned session, not req.Header.Sender: that field
// is the remote's self-declared view of its own end of the link.
func (m *Manager) handleRequest(peerID protocol.PeerID, session *transport.Session, req *protocol.FileRequest) {
	key := wireKey{session: session, filename: req.Filename}
	record := Record{
		FileID:    req.Filename,
		Filename:  req.Filename,
		Peer:      peerID,
		TotalSize: req.FileSize,
		Status:    Pending,
		Direction: Incoming,
	}

	accepted := true
	if m.onRequest != nil {
		accepted = m.onRequest(record)
	}

	t := &incomingTransfer{record: record, session: session, accepted: accepted, seen: make(map[uint32]struct{})}

	if accepted {
		if err := os.MkdirAll(m.downloadDir, 0o755); err != nil {
			m.logger.WithError(err).Error("filetransfer: failed to create download directory")
			t.accepted = false
		} else {
			f, err := os.Create(filepath.Join(m.downloadDir, req.Filename))
			if err != nil {
				m.logger.WithError(err).Error("filetransfer: failed to create destination file")
				t.accepted = false
			} else {
				t.file = f
			}
		}
	}

	if !t.accepted {
		t.record.Status = Rejected
		reject := protocol.NewFileComplete(peerID, req.Filename, false, "rejected")
		if err := session.Send(context.Background(), reject); err != nil {
			m.logger.WithError(err).Warn("filetransfer: failed to send rejection")
		}
		return
	}

	t.record.Status = InProgress
	m.mu.Lock()
	m.incoming[key] = t
	m.mu.Unlock()
}

// handleChunk writes an inbound chunk to disk and, once the file's full
// size has arrived, marks the transfer Completed and sends a successful
// FileComplete back — the receiver decides completion independently of
// whatever the sender's own FileComplete says, since it is the only side
// that actually knows every byte landed.
func (m *Manager) handleChunk(session *transport.Session, chunk *protocol.FileChunk) {
	key := wireKey{session: session, filename: chunk.FileID}
	m.mu.Lock()
	t, ok := m.incoming[key]
	m.mu.Unlock()
	if !ok {
		m.logger.WithField("file_id", chunk.FileID).Warn("filetransfer: chunk for unknown transfer")
		return
	}
	if !t.accepted {
		return
	}

	m.mu.Lock()
	_, dup := t.seen[chunk.ChunkIndex]
	if !dup {
		t.seen[chunk.ChunkIndex] = struct{}{}
	}
	m.mu.Unlock()

	offset := int64(chunk.ChunkIndex) * int64(m.chunkSize)
	if _, err := t.file.WriteAt(chunk.Data, offset); err != nil {
		m.logger.WithError(err).Error("filetransfer: write failed")
		return
	}

	if dup {
		return
	}

	m.mu.Lock()
	t.record.BytesTransferred += uint64(len(chunk.Data))
	record := t.record
	done := t.record.BytesTransferred >= t.record.TotalSize
	if done {
		t.record.Status = Completed
		record = t.record
		delete(m.incoming, key)
	}
	m.mu.Unlock()

	if m.onProgress != nil {
		m.onProgress(record)
	}

	if done {
		if t.file != nil {
			_ = t.file.Close()
		}
		complete := protocol.NewFileComplete(session.PeerID(), chunk.FileID, true, "")
		if err := session.Send(context.Background(), complete); err != nil {
			m.logger.WithError(err).Warn("filetransfer: failed to send completion ack")
		}
		if m.onCompleted != nil {
			m.onCompleted(record, nil)
		}
	}
}

// handleComplete is the peer's acknowledgement of a transfer this instance
// sent, or (on rejection) of one it tried to send that never got past the
// request. For a transfer this instance is receiving, only a failing
// FileComplete (the sender cancelled or hit a read error) is acted on: it
// closes and removes the incoming record as Failed. Successful completion
// of a received transfer is decided in handleChunk.
func (m *Manager) handleComplete(session *transport.Session, complete *protocol.FileComplete) {
	key := wireKey{session: session, filename: complete.FileID}

	m.mu.Lock()
	t, ok := m.outgoingByWire[key]
	if ok {
		delete(m.outgoing, t.record.FileID)
		delete(m.outgoingByWire, key)
	}
	in, inOK := m.incoming[key]
	inOK = inOK && !ok && !complete.Success
	if inOK {
		delete(m.incoming, key)
	}
	m.mu.Unlock()
	if inOK {
		if in.file != nil {
			_ = in.file.Close()
		}
		in.record.Status = Failed
		if m.onCompleted != nil {
			m.onCompleted(in.record, fmt.Errorf("filetransfer: peer reported failure: %s", complete.Err))
		}
		return
	}
	if !ok {
		return
	}

	var err error
	status := Completed
	if !complete.Success {
		status = Failed
		err = fmt.Errorf("filetransfer: peer reported failure: %s", complete.Err)
	}
	t.record.Status = status

	if m.onCompleted != nil {
		m.onCompleted(t.record, err)
	}
}

// CancelTransfer stops a transfer this instance initiated (by local path)
// or is currently receiving (by filename), telling the peer with a
// failing FileComplete before removing the local record.
func (m *Manager) CancelTransfer(fileID string) error {
	m.mu.Lock()
	if t, ok := m.outgoing[fileID]; ok {
		delete(m.outgoing, fileID)
		delete(m.outgoingByWire, t.wireKey)
		m.mu.Unlock()
		if t.session != nil {
			complete := protocol.NewFileComplete(t.session.PeerID(), t.record.Filename, false, "cancelled")
			_ = t.session.Send(context.Background(), complete)
		}
		return nil
	}
	for key, t := range m.incoming {
		if t.record.FileID == fileID {
			delete(m.incoming, key)
			m.mu.Unlock()
			if t.file != nil {
				_ = t.file.Close()
			}
			if t.session != nil {
				complete := protocol.NewFileComplete(t.session.PeerID(), t.record.Filename, false, "cancelled")
				_ = t.session.Send(context.Background(), complete)
			}
			return nil
		}
	}
	m.mu.Unlock()
	return ErrTransferNotFound
}

// GetOngoingTransfers returns a snapshot of every transfer currently in
// flight, both directions combined.
func (m *Manager) GetOngoingTransfers() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]Record, 0, len(m.outgoing)+len(m.incoming))
	for _, t := range m.outgoing {
		records = append(records, t.record)
	}
	for _, t := range m.incoming {
		records = append(records, t.record)
	}
	return records
}
