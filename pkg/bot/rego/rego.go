// Package rego provides bots written as OPA Rego policies.
//
// The bot view is the input document, the rule data.botrace.decide has to
// produce an object like {"speed": "ACCELERATE", "lane": "CHANGE_LANE_LEFT",
// "special": ["JUMP"]}. Missing keys are treated like in a controller: no
// speed means IDLE, no lane means no lane change.
package rego

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

const DecideQuery = "data.botrace.decide"

var (
	ErrNoDecision      = errors.New("policy produced no decision")
	ErrInvalidDecision = errors.New("invalid decision")
)

type Bot struct {
	name  string
	path  string
	l     *log.Logger
	mu    sync.RWMutex
	query rego.PreparedEvalQuery

	watch   bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
}

type Option func(b *Bot)

func WithName(name string) Option {
	return func(b *Bot) {
		b.name = name
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Bot) {
		b.l = l
	}
}

// WithWatch reloads the policy whenever the policy file is written.
// Only used by Load.
func WithWatch(watch bool) Option {
	return func(b *Bot) {
		b.watch = watch
	}
}

func newBot(opts ...Option) *Bot {
	ret := &Bot{
		l:    log.Default().Named("bot").Named("rego"),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// New creates a bot from policy source
func New(module string, opts ...Option) (*Bot, error) {
	ret := newBot(opts...)
	if ret.name == "" {
		ret.name = "rego"
	}
	if err := ret.prepare(ret.name+".rego", module); err != nil {
		return nil, err
	}
	return ret, nil
}

// Load creates a bot from a policy file
func Load(path string, opts ...Option) (*Bot, error) {
	ret := newBot(opts...)
	ret.path = path
	if ret.name == "" {
		ret.name = filepath.Base(path)
	}
	if err := ret.load(); err != nil {
		return nil, err
	}
	if ret.watch {
		if err := ret.startWatcher(); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) load() error {
	src, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	return b.prepare(b.path, string(src))
}

func (b *Bot) prepare(filename, module string) error {
	r := rego.New(
		rego.Query(DecideQuery),
		rego.Module(filename, module),
	)
	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		b.l.Error("failed to prepare query",
			log.String("bot", b.name),
			log.ErrorField(err))
		return fmt.Errorf("prepare policy %s: %w", filename, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query = query
	return nil
}

// Decide evaluates the policy with v as input
func (b *Bot) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	b.mu.RLock()
	query := b.query
	b.mu.RUnlock()

	rs, err := query.Eval(ctx, rego.EvalInput(v))
	if err != nil {
		return model.ActionPlan{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return model.ActionPlan{}, ErrNoDecision
	}
	return toPlan(rs[0].Expressions[0].Value)
}

func toPlan(val any) (model.ActionPlan, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return model.ActionPlan{}, fmt.Errorf("%w: %T", ErrInvalidDecision, val)
	}
	c := model.NewController()
	if s, ok := m["speed"].(string); ok && model.Action(s).Category() == model.CategorySpeed {
		c.Execute(model.Action(s))
	}
	if s, ok := m["lane"].(string); ok && model.Action(s).Category() == model.CategoryLane {
		c.Execute(model.Action(s))
	}
	if special, ok := m["special"].([]any); ok {
		for _, a := range special {
			if s, ok := a.(string); ok && model.Action(s).Category() == model.CategorySpecial {
				c.Execute(model.Action(s))
			}
		}
	}
	return c.Plan(), nil
}

// Close stops watching the policy file
func (b *Bot) Close() error {
	var err error
	b.closed.Do(func() {
		close(b.done)
		if b.watcher != nil {
			err = b.watcher.Close()
		}
	})
	return err
}

// startWatcher watches the directory of the policy file. Editors often
// replace files instead of writing them, so create events count as well.
func (b *Bot) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", b.path, err)
	}
	b.watcher = watcher
	go b.watchAndReload()
	return nil
}

func (b *Bot) watchAndReload() {
	target := filepath.Clean(b.path)
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				b.l.Info("policy changed, reloading",
					log.String("bot", b.name),
					log.String("file", event.Name))
				// a broken policy keeps the previous one active
				if err := b.load(); err != nil {
					b.l.Warn("reload failed", log.ErrorField(err))
				}
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.l.Error("watcher error", log.ErrorField(err))
		}
	}
}
