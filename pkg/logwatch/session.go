package logwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/srctools/srcexec/pkg/logtail"
	"github.com/srctools/srcexec/pkg/metrics"
)

const defaultPollInterval = 250 * time.Millisecond

// nonDetached tracks sessions started with Detached unset, so a main
// that wants to exit only after its watchers are done can WaitAll.
var nonDetached sync.WaitGroup

// WaitAll blocks until every non-detached session has finished.
func WaitAll() {
	nonDetached.Wait()
}

// Options configures a watch session.
type Options struct {
	// Iters is the success threshold: the session stops itself after
	// this many handler invocations have returned true. Defaults to 1.
	Iters int

	// Poll forces stat polling of the target file instead of fsnotify.
	// Polling is also the automatic fallback when fsnotify cannot be
	// set up; some platforms never deliver inotify events for
	// single-file log rewrites, set Poll there.
	Poll bool

	// PollInterval is the polling cadence. Defaults to 250ms.
	PollInterval time.Duration

	// Block makes Start wait until the session has stopped.
	Block bool

	// Detached marks the session as allowed to outlive the caller's
	// own shutdown: it is excluded from WaitAll accounting.
	Detached bool

	// Logger receives session diagnostics. Optional.
	Logger *log.Entry
}

// Session watches the directory of one log file, filters notifications
// down to that exact file, dispatches them to a Handler and stops
// itself once enough handler calls have reported success. All handler
// invocations happen sequentially on the session's own goroutine.
type Session struct {
	logfile *logtail.LogFile
	handler Handler
	opts    Options
	logger  *log.Entry
	target  string

	mu        sync.Mutex
	running   bool
	successes int
	t         *tomb.Tomb
}

// NewSession creates a session over logfile dispatching to h. The
// session is Idle until Start.
func NewSession(logfile *logtail.LogFile, h Handler, opts Options) *Session {
	if opts.Iters <= 0 {
		opts.Iters = 1
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "logwatch")
	}

	target, err := filepath.Abs(logfile.Path())
	if err != nil {
		target = filepath.Clean(logfile.Path())
	}

	return &Session{
		logfile: logfile,
		handler: h,
		opts:    opts,
		logger:  logger.WithField("file", target),
		target:  target,
	}
}

// LogFile returns the tailed file this session watches.
func (s *Session) LogFile() *logtail.LogFile {
	return s.logfile
}

// Running reports whether the dispatch loop is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Successes returns the current success count.
func (s *Session) Successes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.successes
}

// Start begins watching. Calling Start on a running session is a
// no-op. The success counter is reset, a watch on the parent directory
// of the target file (non-recursive) is registered, and the dispatch
// loop is launched. With Options.Block, Start only returns once the
// session has stopped, with the loop's terminal error.
func (s *Session) Start() error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		s.logger.Debug("already started")

		return nil
	}

	var watcher *fsnotify.Watcher

	if !s.opts.Poll {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.logger.Warningf("fsnotify unavailable, falling back to polling: %s", err)
		} else if err := w.Add(filepath.Dir(s.target)); err != nil {
			w.Close()
			s.mu.Unlock()

			return fmt.Errorf("could not watch %s: %w", filepath.Dir(s.target), err)
		} else {
			watcher = w
		}
	}

	s.successes = 0
	s.t = &tomb.Tomb{}
	s.running = true

	if !s.opts.Detached {
		nonDetached.Add(1)
	}

	s.t.Go(func() error {
		return s.run(watcher)
	})

	s.mu.Unlock()

	if s.opts.Block {
		return s.Wait()
	}

	return nil
}

// Stop cancels the subscription and the dispatch loop and waits for it
// to finish. It does not interrupt a handler already in progress. Safe
// to call repeatedly and on a session that was never started; returns
// the loop's terminal error, if any.
func (s *Session) Stop() error {
	s.mu.Lock()
	t := s.t
	s.mu.Unlock()

	if t == nil {
		return nil
	}

	t.Kill(nil)

	return t.Wait()
}

// Wait blocks until the session stops and returns the dispatch loop's
// terminal error (a handler failure, or nil on threshold auto-stop and
// explicit Stop).
func (s *Session) Wait() error {
	s.mu.Lock()
	t := s.t
	s.mu.Unlock()

	if t == nil {
		return nil
	}

	return t.Wait()
}

func (s *Session) run(w *fsnotify.Watcher) error {
	defer func() {
		s.mu.Lock()
		s.running = false

		if w != nil {
			if err := w.Close(); err != nil {
				s.logger.Warningf("could not close watcher: %s", err)
			}
		}
		s.mu.Unlock()

		if !s.opts.Detached {
			nonDetached.Done()
		}
	}()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		tickCh <-chan time.Time
	)

	if w != nil {
		events = w.Events
		errs = w.Errors
	} else {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	// Poll baseline. Size starts at zero even when the file exists, so
	// the first tick reports content written before the session began.
	var (
		lastSize int64
		lastMod  time.Time
	)

	_, statErr := os.Stat(s.target)
	exists := statErr == nil

	for {
		select {
		case <-s.t.Dying():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			kind, relevant := classify(ev.Op)
			if !relevant || !s.isTarget(ev.Name) {
				continue
			}

			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				continue
			}

			stop, err := s.dispatch(kind)
			if err != nil {
				return err
			}

			if stop {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}

			// Transient watch errors: skip the cycle, keep watching.
			s.logger.Warningf("watch error: %s", err)

		case <-tickCh:
			fi, err := os.Stat(s.target)

			var kind EventKind

			switch {
			case err != nil && os.IsNotExist(err):
				if !exists {
					continue
				}

				exists = false
				lastSize = 0
				lastMod = time.Time{}
				kind = EventDeleted

			case err != nil:
				s.logger.Warningf("could not stat %s: %s", s.target, err)
				continue

			case !exists:
				exists = true
				lastSize = fi.Size()
				lastMod = fi.ModTime()
				kind = EventCreated

			case fi.Size() != lastSize || !fi.ModTime().Equal(lastMod):
				lastSize = fi.Size()
				lastMod = fi.ModTime()
				kind = EventModified

			default:
				continue
			}

			stop, err := s.dispatch(kind)
			if err != nil {
				return err
			}

			if stop {
				return nil
			}
		}
	}
}

// dispatch routes one classified notification to the handler and
// applies success accounting. It reports whether the session reached
// its threshold and must stop.
func (s *Session) dispatch(kind EventKind) (bool, error) {
	s.logger.Debugf("dispatching %s", kind)
	metrics.WatcherEventsHandled.WithLabelValues(s.target, kind.String()).Inc()

	var (
		success bool
		err     error
	)

	switch kind {
	case EventModified:
		success, err = s.handler.OnModified(s.target)
	case EventCreated:
		success, err = s.handler.OnCreated(s.target)
	case EventDeleted:
		success, err = s.handler.OnDeleted(s.target)
	case EventClosed:
		success, err = s.handler.OnClosed(s.target)
	case EventMoved:
		success, err = s.handler.OnMoved(s.target)
	}

	if err != nil {
		return false, fmt.Errorf("handler for %s event: %w", kind, err)
	}

	if !success {
		return false, nil
	}

	metrics.WatcherSuccessEvents.WithLabelValues(s.target).Inc()

	s.mu.Lock()
	s.successes++
	n := s.successes
	s.mu.Unlock()

	if n >= s.opts.Iters {
		s.logger.Debugf("success threshold reached (%d), stopping", n)
		return true, nil
	}

	return false, nil
}

func (s *Session) isTarget(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}

	return abs == s.target
}

// Scoped starts s, runs fn, and guarantees the session is fully
// stopped before returning on every exit path. On a normal return from
// fn it first waits for the session to finish (threshold auto-stop),
// mirroring acquisition-as-a-guard semantics; on error it stops the
// session immediately.
func Scoped(s *Session, fn func() error) (err error) {
	if err = s.Start(); err != nil {
		return err
	}

	defer func() {
		serr := s.Stop()
		if err == nil {
			err = serr
		}
	}()

	if err = fn(); err != nil {
		return err
	}

	return s.Wait()
}
