package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"limlog/internal/config"
)

// StartTCPStream accepts newline framed limit-log lines. Each connection is
// read in order; lines from concurrent connections interleave.
func StartTCPStream(ctx context.Context, cfg config.TCPStreamConfig, out chan<- Line, logger *slog.Logger) (net.Addr, error) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return nil, nil
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return nil, err
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", ln.Addr().String())
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, out, logger)
		}
	}()
	return ln.Addr(), nil
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, out chan<- Line, logger *slog.Logger) {
	defer conn.Close()
	source := "tcp_stream:" + conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		if !Send(ctx, out, Line{Text: scanner.Text(), Source: source}) {
			return
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}
