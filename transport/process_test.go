package transport

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func requireCat(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat binary not available on this system")
	}
	return path
}

func TestProcessTransport_NewlineFramingRoundTrip(t *testing.T) {
	cat := requireCat(t)
	cfg := DefaultProcessConfig(cat)
	cfg.Framing = FramingNewline

	pt := NewProcessTransport(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pt.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pt.Stop(context.Background())

	if !pt.IsRunning() {
		t.Fatal("expected transport to report running after Start")
	}

	want := []byte(`{"jsonrpc":"2.0","method":"ping"}`)
	if err := pt.Send(ctx, want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := pt.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Receive() = %s, want %s", got, want)
	}
}

func TestProcessTransport_ContentLengthFramingRoundTrip(t *testing.T) {
	cat := requireCat(t)
	cfg := DefaultProcessConfig(cat)
	cfg.Framing = FramingContentLength

	pt := NewProcessTransport(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pt.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pt.Stop(context.Background())

	want := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	if err := pt.Send(ctx, want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := pt.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Receive() = %s, want %s", got, want)
	}
}

func TestProcessTransport_StopIsIdempotent(t *testing.T) {
	cat := requireCat(t)
	pt := NewProcessTransport(DefaultProcessConfig(cat))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pt.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := pt.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := pt.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if pt.IsRunning() {
		t.Error("expected transport to report not running after Stop")
	}
	if _, ok := pt.ChildExitCode(); !ok {
		t.Error("expected ChildExitCode to be available after the child exited")
	}
}

func TestProcessTransport_SendAfterStopFails(t *testing.T) {
	cat := requireCat(t)
	pt := NewProcessTransport(DefaultProcessConfig(cat))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pt.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := pt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := pt.Send(ctx, []byte(`{}`)); err != ErrClosed {
		t.Errorf("Send() after Stop error = %v, want ErrClosed", err)
	}
}

func TestValidateCommand_RejectsControlCharacters(t *testing.T) {
	pt := NewProcessTransport(ProcessConfig{Command: "bad\x00cmd"})
	err := pt.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start() to reject a command containing a null byte")
	}
}

func TestValidateCommand_RejectsNullByteByDefault(t *testing.T) {
	if err := validateCommand("bad\x00cmd", nil); err == nil {
		t.Fatal("expected validateCommand to reject a null byte by default")
	}
}
