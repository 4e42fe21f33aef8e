// Package process runs bots as external programs.
//
// The protocol uses one JSON document per line. The program starts with a
// hello message on stdout:
//
//	{"type":"hello","protocol":"1.0.0","name":"my-bot"}
//
// For every tick it receives a request on stdin and answers with the plan
// for that tick:
//
//	{"type":"tick","tick":17,"view":{...}}
//	{"tick":17,"speed":"ACCELERATE","lane":"","special":["JUMP"]}
//
// Answers for older ticks are discarded. Anything the program writes to
// stderr is logged at debug level.
package process

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

const (
	MinProtocol             = "v1.0.0"
	DefaultHandshakeTimeout = 5 * time.Second
	maxLineSize             = 1024 * 1024
	closeGrace              = 500 * time.Millisecond
)

var (
	ErrProtocolVersion = errors.New("unsupported protocol version")
	ErrHandshake       = errors.New("handshake failed")
	ErrBotExited       = errors.New("bot process exited")
)

type hello struct {
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
	Name     string `json:"name,omitempty"`
}

type tickRequest struct {
	Type string        `json:"type"`
	Tick int64         `json:"tick"`
	View *view.BotView `json:"view"`
}

type tickResponse struct {
	Tick    int64          `json:"tick"`
	Speed   model.Action   `json:"speed"`
	Lane    model.Action   `json:"lane"`
	Special []model.Action `json:"special"`
}

// CheckProtocol reports if version is supported. A missing "v" prefix is
// added before comparing.
func CheckProtocol(version string) bool {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return semver.IsValid(version) && semver.Compare(version, MinProtocol) >= 0
}

type Bot struct {
	name             string
	protocol         string
	cmd              *exec.Cmd
	env              []string
	handshakeTimeout time.Duration
	l                *log.Logger

	mu        sync.Mutex // serializes Decide
	stdin     io.WriteCloser
	enc       *json.Encoder
	tick      int64
	responses chan []byte
	stop      chan struct{}
	exited    chan struct{} // closed when stdout is drained
	stderrEOF chan struct{} // closed when stderr is drained
	closed    sync.Once
	closeErr  error
	wait      func() error
}

type Option func(b *Bot)

func WithName(name string) Option {
	return func(b *Bot) {
		b.name = name
	}
}

// WithEnv adds environment variables to the environment of the process
func WithEnv(env ...string) Option {
	return func(b *Bot) {
		b.env = append(b.env, env...)
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(b *Bot) {
		b.handshakeTimeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Bot) {
		b.l = l
	}
}

// Start launches the program and performs the handshake
//
//nolint:funlen // pipe setup
func Start(ctx context.Context, command string, args []string, opts ...Option) (*Bot, error) {
	ret := &Bot{
		handshakeTimeout: DefaultHandshakeTimeout,
		l:                log.Default().Named("bot").Named("process"),
		responses:        make(chan []byte, 16),
		stop:             make(chan struct{}),
		exited:           make(chan struct{}),
		stderrEOF:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	//nolint:gosec // running user supplied bots is the purpose
	ret.cmd = exec.Command(command, args...)
	ret.wait = ret.cmd.Wait
	if len(ret.env) > 0 {
		ret.cmd.Env = append(os.Environ(), ret.env...)
	}
	var err error
	if ret.stdin, err = ret.cmd.StdinPipe(); err != nil {
		return nil, err
	}
	stdout, err := ret.cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := ret.cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := ret.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	ret.enc = json.NewEncoder(ret.stdin)
	go ret.readLines(stdout)
	go ret.logStderr(stderr)

	if err := ret.handshake(ctx); err != nil {
		ret.Close()
		return nil, err
	}
	if ret.name == "" {
		ret.name = command
	}
	ret.l.Info("bot process started",
		log.String("bot", ret.name),
		log.String("protocol", ret.protocol),
		log.Int("pid", ret.cmd.Process.Pid))
	return ret, nil
}

func (b *Bot) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.handshakeTimeout)
	defer cancel()
	var line []byte
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
	case <-b.exited:
		return fmt.Errorf("%w: %w", ErrHandshake, ErrBotExited)
	case line = <-b.responses:
	}
	var h hello
	if err := json.Unmarshal(line, &h); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if h.Type != "hello" {
		return fmt.Errorf("%w: unexpected message type %q", ErrHandshake, h.Type)
	}
	if !CheckProtocol(h.Protocol) {
		return fmt.Errorf("%w: %q (required: %s)", ErrProtocolVersion, h.Protocol, MinProtocol)
	}
	b.protocol = h.Protocol
	if b.name == "" {
		b.name = h.Name
	}
	return nil
}

func (b *Bot) readLines(r io.Reader) {
	defer close(b.exited)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte{}, scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case b.responses <- line:
		case <-b.stop:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		b.l.Warn("error reading bot output", log.String("bot", b.name), log.ErrorField(err))
	}
}

func (b *Bot) logStderr(r io.Reader) {
	defer close(b.stderrEOF)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.l.Debug("bot stderr", log.String("bot", b.name), log.String("line", scanner.Text()))
	}
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Protocol() string {
	return b.protocol
}

// Decide sends the view and waits for the matching answer until ctx is done
func (b *Bot) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick++
	if err := b.enc.Encode(tickRequest{Type: "tick", Tick: b.tick, View: v}); err != nil {
		return model.ActionPlan{}, fmt.Errorf("send view: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return model.ActionPlan{}, ctx.Err()
		case line := <-b.responses:
			var resp tickResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return model.ActionPlan{}, fmt.Errorf("decode answer: %w", err)
			}
			if resp.Tick < b.tick {
				continue // late answer for a previous tick
			}
			return model.ActionPlan{
				Speed:   resp.Speed,
				Lane:    resp.Lane,
				Special: resp.Special,
			}.Normalize(), nil
		case <-b.exited:
			return model.ActionPlan{}, ErrBotExited
		}
	}
}

// Close terminates the process. The process is killed if it does not exit
// within a short grace period after stdin is closed.
// Exit codes are not reported, other errors of cmd.Wait are.
func (b *Bot) Close() error {
	b.closed.Do(func() {
		close(b.stop)
		b.stdin.Close()
		if !b.pipesDrained(closeGrace) {
			_ = b.cmd.Process.Kill()
			if !b.pipesDrained(closeGrace) {
				b.l.Warn("bot output still open after kill", log.String("bot", b.name))
			}
		}
		// cmd.Wait closes the pipes, so it must not run before the readers are done
		waitErr := make(chan error, 1)
		go func() { waitErr <- b.wait() }()
		var err error
		select {
		case err = <-waitErr:
		case <-time.After(closeGrace):
			_ = b.cmd.Process.Kill()
			err = <-waitErr
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			b.closeErr = err
		}
	})
	return b.closeErr
}

func (b *Bot) pipesDrained(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for _, ch := range []chan struct{}{b.exited, b.stderrEOF} {
		select {
		case <-ch:
		case <-timer.C:
			return false
		}
	}
	return true
}
