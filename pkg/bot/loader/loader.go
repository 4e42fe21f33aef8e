// Package loader resolves bot specifications as used on the command line and
// in the HTTP API.
//
// Supported forms:
//
//	simple              builtin bot
//	builtin:fuel        builtin bot
//	rego:path/bot.rego  Rego policy (see package rego)
//	exec:./mybot --fast external program (see package process)
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/bot"
	"github.com/mpapenbr/botrace/pkg/bot/process"
	"github.com/mpapenbr/botrace/pkg/bot/rego"
)

const (
	KindBuiltin = "builtin"
	KindRego    = "rego"
	KindExec    = "exec"
)

var ErrInvalidSpec = errors.New("invalid bot spec")

type Loader struct {
	watch     bool
	allowExec bool
	l         *log.Logger
}

type Option func(l *Loader)

// WithWatch enables hot reload for rego bots
func WithWatch(watch bool) Option {
	return func(l *Loader) {
		l.watch = watch
	}
}

// WithAllowExec controls whether external programs may be started.
// Enabled by default.
func WithAllowExec(allow bool) Option {
	return func(l *Loader) {
		l.allowExec = allow
	}
}

func WithLogger(l *log.Logger) Option {
	return func(ld *Loader) {
		ld.l = l
	}
}

func New(opts ...Option) *Loader {
	ret := &Loader{
		allowExec: true,
		l:         log.Default().Named("bot"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Parse splits spec into kind and argument
func Parse(spec string) (kind, arg string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidSpec)
	}
	kind, arg, found := strings.Cut(spec, ":")
	if !found {
		return KindBuiltin, spec, nil
	}
	arg = strings.TrimSpace(arg)
	switch kind {
	case KindBuiltin, KindRego, KindExec:
	default:
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, kind)
	}
	if arg == "" {
		return "", "", fmt.Errorf("%w: missing argument for %s", ErrInvalidSpec, kind)
	}
	return kind, arg, nil
}

// Resolve creates the bot described by spec.
// The caller should release it with bot.Close.
func (l *Loader) Resolve(ctx context.Context, spec string) (bot.Bot, error) {
	kind, arg, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	l.l.Debug("resolving bot", log.String("kind", kind), log.String("arg", arg))
	switch kind {
	case KindRego:
		b, err := rego.Load(arg, rego.WithWatch(l.watch), rego.WithLogger(l.l.Named("rego")))
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindExec:
		if !l.allowExec {
			return nil, fmt.Errorf("%w: external programs are disabled", ErrInvalidSpec)
		}
		fields := strings.Fields(arg)
		b, err := process.Start(ctx, fields[0], fields[1:], process.WithLogger(l.l.Named("process")))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return bot.Builtin(arg)
	}
}

// ResolveHost creates the bot described by spec wrapped in a bot.Host
func (l *Loader) ResolveHost(ctx context.Context, spec string, opts ...bot.HostOption) (*bot.Host, error) {
	b, err := l.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}
	return bot.NewHost(b, opts...), nil
}
