package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/modelcontext/runtime/internal/json"
)

// Framing selects how messages are delimited on the subprocess's stdio
// pipes.
type Framing int

const (
	// FramingNewline delimits one JSON value per line.
	FramingNewline Framing = iota
	// FramingContentLength uses "Content-Length: N\r\n\r\n" headers
	// followed by N bytes of UTF-8 JSON, as HTTP/LSP-style transports do.
	FramingContentLength
)

// StderrHandling selects what the process transport does with the child's
// stderr stream.
type StderrHandling int

const (
	StderrDiscard StderrHandling = iota
	StderrPassthrough
	StderrCapture
)

// ProcessConfig configures a subprocess-backed Transport.
type ProcessConfig struct {
	Command string
	Args    []string

	Framing        Framing
	MaxMessageSize int64 // 0 = DefaultMaxMessageBytes, <0 = unlimited

	StderrHandling StderrHandling

	// ShutdownTimeout is how long Stop waits for the child to exit after
	// closing stdin before escalating to a termination signal. The wait
	// between the termination signal and the kill signal is a fixed 2s.
	ShutdownTimeout time.Duration

	// SkipCommandValidation disables the null-byte/control-character check
	// on Command and Args. Leave false unless Command is fully trusted.
	SkipCommandValidation bool
}

// DefaultProcessConfig fills in the reference defaults: Content-Length
// framing, 1,000,000-byte messages (DefaultMaxMessageBytes), discarded
// stderr, 5s graceful shutdown.
func DefaultProcessConfig(command string, args ...string) ProcessConfig {
	return ProcessConfig{
		Command:         command,
		Args:            args,
		Framing:         FramingContentLength,
		StderrHandling:  StderrDiscard,
		ShutdownTimeout: 5 * time.Second,
	}
}

// validateCommand rejects null bytes and control characters in the command
// and its arguments, which have no legitimate use in an exec path/argv and
// are a common injection vector when the command string is assembled from
// untrusted input upstream.
func validateCommand(command string, args []string) error {
	check := func(s string) error {
		for _, r := range s {
			if r == 0 || (r < 0x20 && r != '\t') {
				return fmt.Errorf("contains a null byte or control character: %q", s)
			}
		}
		return nil
	}
	if err := check(command); err != nil {
		return fmt.Errorf("transport: invalid command: %w", err)
	}
	for _, a := range args {
		if err := check(a); err != nil {
			return fmt.Errorf("transport: invalid argument: %w", err)
		}
	}
	return nil
}

// ProcessTransport spawns a subprocess connected by stdin/stdout/stderr
// pipes and speaks the Protocol framed per Config.Framing over stdin/stdout.
type ProcessTransport struct {
	config ProcessConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
	exitErr error
	exited  chan struct{}

	sendMu sync.Mutex

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer

	incoming chan json.RawMessage
	readErr  chan error
}

// NewProcessTransport constructs a ProcessTransport. Start must be called
// before Send/Receive.
func NewProcessTransport(config ProcessConfig) *ProcessTransport {
	return &ProcessTransport{
		config:   config,
		incoming: make(chan json.RawMessage, 16),
		readErr:  make(chan error, 1),
	}
}

func (t *ProcessTransport) Start(ctx context.Context) error {
	if !t.config.SkipCommandValidation {
		if err := validateCommand(t.config.Command, t.config.Args); err != nil {
			return &Error{Op: "start", Err: err}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return &Error{Op: "start", Err: fmt.Errorf("already running")}
	}

	cmd := exec.CommandContext(ctx, t.config.Command, t.config.Args...)
	cmd.Cancel = func() error { return nil } // we manage shutdown ourselves, not context cancellation

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &Error{Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Op: "start", Err: err}
	}

	switch t.config.StderrHandling {
	case StderrPassthrough:
		cmd.Stderr = passthroughWriter{}
	case StderrCapture:
		cmd.Stderr = &captureWriter{t: t}
	default:
		cmd.Stderr = nil
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return &Error{Op: "start", Err: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.running = true
	t.exited = make(chan struct{})

	go t.readLoop(stdout)
	go t.waitLoop()

	return nil
}

func (t *ProcessTransport) waitLoop() {
	err := t.cmd.Wait()
	t.mu.Lock()
	t.exitErr = err
	t.running = false
	close(t.exited)
	t.mu.Unlock()
}

func (t *ProcessTransport) readLoop(stdout io.Reader) {
	limit := effectiveMaxMessageBytes(t.config.MaxMessageSize)
	r := bufio.NewReaderSize(stdout, 64*1024)

	var err error
	for {
		var msg json.RawMessage
		switch t.config.Framing {
		case FramingContentLength:
			msg, err = readContentLengthFrame(r, limit)
		default:
			msg, err = readLineFrame(r, limit)
		}
		if err != nil {
			t.readErr <- err
			close(t.incoming)
			return
		}
		t.incoming <- msg
	}
}

func readLineFrame(r *bufio.Reader, limit int64) (json.RawMessage, error) {
	line, err := r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if limit > 0 && int64(len(line)) > limit {
		return nil, fmt.Errorf("transport: message exceeds max size %d bytes", limit)
	}
	return json.RawMessage(line), nil
}

func readContentLengthFrame(r *bufio.Reader, limit int64) (json.RawMessage, error) {
	var contentLength int64 = -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // blank line ends the header block
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("transport: malformed Content-Length: %w", err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("transport: frame missing Content-Length header")
	}
	if limit > 0 && contentLength > limit {
		return nil, fmt.Errorf("transport: message exceeds max size %d bytes", limit)
	}
	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return json.RawMessage(buf), nil
}

func (t *ProcessTransport) Send(ctx context.Context, msg json.RawMessage) error {
	t.mu.Lock()
	stdin := t.stdin
	running := t.running
	t.mu.Unlock()
	if !running || stdin == nil {
		return ErrClosed
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	var framed []byte
	switch t.config.Framing {
	case FramingContentLength:
		framed = []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(msg), msg))
	default:
		framed = append(append([]byte{}, msg...), '\n')
	}

	// Writes are retried until the whole frame is flushed; Write on a
	// pipe can return a short write under backpressure, and starting a
	// new Send before the prior one finishes would interleave frames.
	for len(framed) > 0 {
		n, err := stdin.Write(framed)
		if err != nil {
			return &Error{Op: "send", Err: err}
		}
		framed = framed[n:]
	}
	return nil
}

func (t *ProcessTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg, ok := <-t.incoming:
		if !ok {
			select {
			case err := <-t.readErr:
				return nil, &Error{Op: "receive", Err: err}
			default:
				return nil, ErrClosed
			}
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *ProcessTransport) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// ChildExitCode returns the child's exit code once it has been reaped, and
// false until then.
func (t *ProcessTransport) ChildExitCode() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.cmd == nil || t.cmd.ProcessState == nil {
		return 0, false
	}
	return t.cmd.ProcessState.ExitCode(), true
}

// Stderr returns the captured stderr buffer; only meaningful when
// StderrHandling is StderrCapture.
func (t *ProcessTransport) Stderr() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return t.stderrBuf.String()
}

// Stop closes stdin, waits up to ShutdownTimeout for the child to exit,
// then escalates to a termination signal and finally a kill signal. It
// never holds t.mu while sleeping, so concurrent Receive callers aren't
// blocked past ctx cancellation.
func (t *ProcessTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running && t.cmd == nil {
		t.mu.Unlock()
		return nil
	}
	stdin := t.stdin
	exited := t.exited
	pgid := processGroupID(t.cmd)
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if exited == nil {
		return nil
	}

	timeout := t.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	sendSignal(pgid, unix.SIGTERM)
	select {
	case <-exited:
		return nil
	case <-time.After(2 * time.Second):
	}

	sendSignal(pgid, unix.SIGKILL)
	<-exited
	return nil
}

type passthroughWriter struct{}

func (passthroughWriter) Write(p []byte) (int, error) {
	return os.Stderr.Write(p)
}

type captureWriter struct {
	t *ProcessTransport
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.t.stderrMu.Lock()
	defer w.t.stderrMu.Unlock()
	w.t.stderrBuf.Write(p)
	return len(p), nil
}

// setProcessGroup places the child in its own process group so Stop's
// signal escalation can reach the whole subtree a shell-wrapped server
// command might spawn, not just the immediate child.
func setProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func processGroupID(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

func sendSignal(pgid int, sig unix.Signal) {
	if pgid <= 0 {
		return
	}
	// Negative pid targets the process group created by Setpgid above.
	_ = unix.Kill(-pgid, sig)
}
