// Package trigger watches the approval log and schedules detection
// passes when new approvals land. Bursts of appends are coalesced with
// a debounce window, and a change budget forces a pass when the log
// never goes quiet.
package trigger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
)

const (
	// DefaultDebounce is the quiet period after the last append before
	// a detection pass runs.
	DefaultDebounce = 2 * time.Second

	// DefaultEventBudget forces a detection pass after this many appends
	// even if the log never goes quiet.
	DefaultEventBudget = 25

	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	maxRetries           = 5
)

// Config controls a Trigger.
type Config struct {
	// Path is the approval log file to watch.
	Path string

	// Debounce is the quiet period before a pass runs. Zero means
	// DefaultDebounce.
	Debounce time.Duration

	// EventBudget forces a pass after this many changes. Zero means
	// DefaultEventBudget.
	EventBudget int

	// Run executes one detection pass. Failures are retried with
	// capped exponential backoff before giving up until the next
	// change.
	Run func(ctx context.Context) error
}

// Trigger schedules detection passes from filesystem activity on the
// approval log.
type Trigger struct {
	path     string
	debounce time.Duration
	budget   int
	run      func(ctx context.Context) error

	// retryInitial seeds the backoff between failed passes. Tests
	// shrink it to keep retries fast.
	retryInitial time.Duration

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
}

// New creates a trigger watching cfg.Path. The log's directory is
// created if it does not exist yet so the watch can be established
// before the first approval is recorded.
func New(cfg Config) (*Trigger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("trigger requires a log path")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("trigger requires a run function")
	}

	path := filepath.Clean(cfg.Path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the containing directory rather than the log itself. The
	// log is replaced during rotation, and on some systems watching a
	// file directly doesn't survive that.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	budget := cfg.EventBudget
	if budget <= 0 {
		budget = DefaultEventBudget
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		path:         path,
		debounce:     debounce,
		budget:       budget,
		run:          cfg.Run,
		retryInitial: retryInitialInterval,
		watcher:      watcher,
		ctx:          ctx,
		cancel:       cancel,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Path returns the watched approval log path.
func (t *Trigger) Path() string {
	return t.path
}

// Start begins watching in a background goroutine.
func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true

	logging.Info().
		Str("path", t.path).
		Dur("debounce", t.debounce).
		Int("budget", t.budget).
		Msg("watching approval log")

	go t.loop()
}

// Stop halts the watch and waits for any in-flight pass to finish.
func (t *Trigger) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel()

	select {
	case <-t.stopCh:
		// Already stopped.
	default:
		close(t.stopCh)
	}

	if t.started {
		<-t.doneCh
		t.started = false
	}

	return t.watcher.Close()
}

func (t *Trigger) loop() {
	defer close(t.doneCh)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timerC:
			default:
			}
		}
		timer = nil
		timerC = nil
	}

	for {
		select {
		case <-t.stopCh:
			stopTimer()
			return

		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			pending++
			if pending >= t.budget {
				logging.Debug().Int("changes", pending).Msg("change budget reached")
				stopTimer()
				pending = 0
				t.cycle()
				continue
			}

			if timer == nil {
				timer = time.NewTimer(t.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(t.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			pending = 0
			t.cycle()

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("approval log watcher error")
		}
	}
}

// cycle runs one detection pass, retrying failures until the backoff
// gives up. Changes that arrive while a pass runs queue up and count
// toward the next one.
func (t *Trigger) cycle() {
	b := t.newRetryBackoff()
	for {
		err := t.run(t.ctx)
		if err == nil {
			return
		}
		if t.ctx.Err() != nil {
			return
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			logging.Error().Err(err).Msg("detection pass failed, waiting for new approvals")
			return
		}

		logging.Warn().Err(err).Dur("retry_in", next).Msg("detection pass failed, retrying")
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(next):
		}
	}
}

func (t *Trigger) newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryInitial
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), t.ctx)
}
