package main

import (
	"context"
	"fmt"
	"time"

	"github.com/linknet/linknet/internal/config"
	"github.com/linknet/linknet/internal/filetransfer"
	"github.com/linknet/linknet/internal/logging"
	"github.com/linknet/linknet/internal/transport"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send address file-path",
	Short: "send a file to a peer at address",
	Long:  `dials address directly and streams file-path to it, printing a progress bar as chunks are sent`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	address, path := args[0], args[1]
	logger := logging.NewLogger()

	tr, err := transport.NewTransport(":0", logger)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), sendDialTimeout)
	defer cancel()

	session, err := tr.Dial(ctx, address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	defer func() { _ = session.Close() }()

	cfg := config.New()
	ft := filetransfer.New(tr, cfg.ChunkSize, "", logger)

	var bar *progressbar.ProgressBar
	done := make(chan error, 1)

	ft.OnProgress(func(r filetransfer.Record) {
		if bar == nil {
			bar = progressbar.DefaultBytes(int64(r.TotalSize), "sending "+r.Filename)
		}
		_ = bar.Set64(int64(r.BytesTransferred))
	})
	ft.OnCompleted(func(r filetransfer.Record, err error) {
		done <- err
	})

	sendCtx, sendCancel := context.WithTimeout(context.Background(), sendTransferTimeout)
	defer sendCancel()

	if _, err := ft.SendFile(sendCtx, session, path); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		fmt.Println("transfer complete")
		return nil
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

const (
	sendDialTimeout     = 5 * time.Second
	sendTransferTimeout = 10 * time.Minute
)
