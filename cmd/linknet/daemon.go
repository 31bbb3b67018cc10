package main

import (
	"context"
	"encoding/hex"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/linknet/linknet/internal/chat"
	"github.com/linknet/linknet/internal/config"
	"github.com/linknet/linknet/internal/discovery"
	"github.com/linknet/linknet/internal/filetransfer"
	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/protocol"
	"github.com/linknet/linknet/internal/store"
	"github.com/linknet/linknet/internal/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const dialTimeout = 5 * time.Second

// app bundles every collaborator the daemon wires together.
type app struct {
	cfg    config.Config
	logger *logrus.Logger

	tr      *transport.Transport
	disc    *discovery.Discovery
	chatMgr *chat.Chat
	ftMgr   *filetransfer.Manager
	store   *store.ChatStore
}

func newApp(cfg config.Config, logger *logrus.Logger) (*app, error) {
	tr, err := transport.NewTransport(":"+strconv.Itoa(cfg.TCPPort), logger)
	if err != nil {
		return nil, err
	}

	chatStore, err := store.NewChatStore("linknet.sqlite3")
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		tr:     tr,
		store:  chatStore,
	}

	a.chatMgr = chat.New(tr, chatStore, logger)
	a.chatMgr.OnIncoming(func(peer protocol.PeerID, content string) {
		logger.WithField("peer", peerShort(peer)).Infof("chat: %s", content)
	})

	a.ftMgr = filetransfer.New(tr, cfg.ChunkSize, cfg.DownloadDir, logger)
	a.ftMgr.OnRequest(func(r filetransfer.Record) bool { return true })
	a.ftMgr.OnCompleted(func(r filetransfer.Record, err error) {
		if err != nil {
			logger.WithError(err).Warnf("filetransfer: %s failed", r.Filename)
			return
		}
		logger.Infof("filetransfer: received %s (%d bytes)", r.Filename, r.TotalSize)
	})

	tcpPort := tr.LocalAddr().(*net.TCPAddr).Port
	a.disc = discovery.New(tcpPort, logger)
	if cfg.AutoConnect {
		a.disc.OnPeerFound(func(p discovery.Peer) {
			go a.dialDiscovered(p)
		})
	}

	return a, nil
}

func (a *app) dialDiscovered(p discovery.Peer) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	addr := p.Addr.String() + ":" + strconv.Itoa(p.Port)
	if _, err := a.tr.Dial(ctx, addr); err != nil {
		a.logger.WithError(err).WithField("addr", addr).Debug("auto-connect: dial failed")
	}
}

func (a *app) acceptLoop(ctx context.Context) {
	for {
		session, err := a.tr.Accept(ctx)
		if err != nil {
			return
		}
		a.logger.WithField("remote", session.RemoteAddr()).Info("accepted session")
	}
}

func (a *app) close() {
	a.disc.Stop()
	_ = a.tr.Close()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	if flagPort != 0 {
		cfg.TCPPort = flagPort
	}
	cfg.AutoConnect = flagAutoConnect
	if flagDownloadDir != "" {
		cfg.DownloadDir = flagDownloadDir
	}

	logger := logging.NewLogger()
	if flagVerbose {
		logger = logging.NewDebugLogger()
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.disc.Start(); err != nil {
		return err
	}
	go a.acceptLoop(ctx)

	logger.WithField("port", a.tr.LocalAddr()).Info("linknet daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return nil
}

func peerShort(id protocol.PeerID) string {
	return hex.EncodeToString(id[:6])
}
