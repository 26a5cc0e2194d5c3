package ingest

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"limlog/internal/config"
)

func recv(t *testing.T, ch <-chan Line) Line {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a line")
	}
	return Line{}
}

func TestTCPStreamKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Line, 10)
	addr, err := StartTCPStream(ctx, config.TCPStreamConfig{Enabled: true, Addr: "127.0.0.1:0"}, out, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("first\nsecond\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if l := recv(t, out); l.Text != "first" {
		t.Fatalf("got %q", l.Text)
	}
	l := recv(t, out)
	if l.Text != "second" {
		t.Fatalf("got %q", l.Text)
	}
	if len(l.Source) < len("tcp_stream:") || l.Source[:len("tcp_stream:")] != "tcp_stream:" {
		t.Fatalf("source: %q", l.Source)
	}
}

func TestTCPStreamDisabled(t *testing.T) {
	addr, err := StartTCPStream(context.Background(), config.TCPStreamConfig{}, nil, nil)
	if addr != nil || err != nil {
		t.Fatalf("expected nothing started, got %v %v", addr, err)
	}
}

func TestFileTailFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Line, 10)
	StartFileTail(ctx, config.FileTailConfig{Enabled: true, Files: []string{path}}, out, nil)

	if l := recv(t, out); l.Text != "old line" || l.Source != "file_tail:"+path {
		t.Fatalf("got %+v", l)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	// a line written in two pieces arrives once it is complete
	if _, err := f.WriteString("new "); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if _, err := f.WriteString("line\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if l := recv(t, out); l.Text != "new line" {
		t.Fatalf("got %q", l.Text)
	}
}

func TestSendHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Send(ctx, make(chan Line), Line{Text: "x"}) {
		t.Fatalf("send succeeded on a cancelled context")
	}
}

func TestKafkaReadErrorsBackOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	read := func(context.Context) (kafka.Message, error) {
		calls++
		if calls == 3 {
			return kafka.Message{Topic: "limits", Value: []byte("a\nb\n")}, nil
		}
		return kafka.Message{}, errors.New("broker unavailable")
	}
	out := make(chan Line, 10)
	done := make(chan struct{})
	go func() {
		consumeKafka(ctx, read, 50*time.Millisecond, out, nil)
		close(done)
	}()
	if l := recv(t, out); l.Text != "a" || l.Source != "kafka:limits" {
		t.Fatalf("got %+v", l)
	}
	if l := recv(t, out); l.Text != "b" {
		t.Fatalf("got %q", l.Text)
	}
	// later reads keep failing; each failure waits out the delay
	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done
	if calls > 10 {
		t.Fatalf("read retried %d times without backing off", calls)
	}
}
