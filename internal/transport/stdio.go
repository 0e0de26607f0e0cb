package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

type writeReq struct {
	line []byte
	errs chan<- error
}

// Stdio spawns the configured command as a child process and exchanges
// line-delimited JSON over its stdin/stdout, per spec.md §4.1.
type Stdio struct {
	command string
	args    []string
	env     map[string]string

	log logging.Logger

	onMessage MessageFunc
	onClose   CloseFunc

	writeMessages chan writeReq
	done          chan struct{}
	closeOnce     sync.Once

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewStdio(command string, args []string, env map[string]string) *Stdio {
	return &Stdio{
		command:       command,
		args:          args,
		env:           env,
		log:           logging.GetDefault().With("component", "transport.stdio", "command", command),
		writeMessages: make(chan writeReq, 16),
		done:          make(chan struct{}),
	}
}

func (s *Stdio) SetInbound(onMessage MessageFunc, onClose CloseFunc) {
	s.onMessage = onMessage
	s.onClose = onClose
}

// SetProtocolVersion is a no-op for stdio: there is no HTTP header to
// stamp on this transport.
func (s *Stdio) SetProtocolVersion(string) {}

func (s *Stdio) Open(ctx context.Context) error {
	name, args := s.command, s.args
	if runtime.GOOS == "windows" && !isShellInvocation(name) {
		args = append([]string{"/C", name}, args...)
		name = "cmd"
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
	cmd.Env = mergeEnv(os.Environ(), s.env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio: start: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go s.drainStderr(stderr)
	go s.readLoop(stdout)
	go s.writeLoop(stdin)
	go s.wait()

	return nil
}

func (s *Stdio) wait() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()
	s.terminate(fmt.Errorf("stdio: process exited: %w", err))
}

func (s *Stdio) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg rpc.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			s.log.Warn("discarding unparseable line", "err", err)
			continue
		}
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		s.terminate(fmt.Errorf("stdio: read: %w", err))
	}
}

func (s *Stdio) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.log.Info("child stderr", "line", scanner.Text())
	}
}

func (s *Stdio) writeLoop(stdin io.WriteCloser) {
	defer stdin.Close()
	for {
		select {
		case <-s.done:
			return
		case req, ok := <-s.writeMessages:
			if !ok {
				return
			}
			_, err := stdin.Write(req.line)
			req.errs <- err
		}
	}
}

func (s *Stdio) Send(ctx context.Context, msg rpc.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	errs := make(chan error, 1)
	select {
	case s.writeMessages <- writeReq{line: payload, errs: errs}:
	case <-s.done:
		return fmt.Errorf("stdio: transport closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stdio) Close(ctx context.Context) error {
	s.terminate(nil)

	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (s *Stdio) terminate(err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}

func isShellInvocation(command string) bool {
	lower := strings.ToLower(command)
	return strings.HasSuffix(lower, ".bat") || strings.HasSuffix(lower, ".cmd") || lower == "cmd"
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	out = append(out, base...)
	for k, v := range overlay {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
