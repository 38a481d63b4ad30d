package logtail

import (
	"fmt"
	"io"
	"time"

	"github.com/nxadm/tail"
	log "github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/srctools/srcexec/pkg/metrics"
)

// Line is a single line read by a Follower.
type Line struct {
	Text string
	Time time.Time
}

// FollowConfig controls how a Follower reads the file.
type FollowConfig struct {
	// FromStart reads the whole file instead of only what gets
	// appended after the follower starts.
	FromStart bool
	// Poll forces stat-based polling instead of inotify. Mandatory on
	// filesystems where inotify is unreliable for single-file rewrites.
	Poll bool
	// Logger receives follower diagnostics. Optional.
	Logger *log.Entry
}

// Follower streams lines from a growing log file. It is the push
// counterpart of LogFile.Ingest, for callers that want a channel of
// lines rather than watcher callbacks.
type Follower struct {
	tail  *tail.Tail
	lines chan Line
	tomb  tomb.Tomb
}

// Follow starts tailing path. The file must exist; use a watcher if
// you need to wait for it to appear first.
func Follow(path string, cfg FollowConfig) (*Follower, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "follower")
	}

	whence := io.SeekEnd
	if cfg.FromStart {
		whence = io.SeekStart
	}

	t, err := tail.TailFile(path, tail.Config{
		ReOpen:    true,
		Follow:    true,
		MustExist: true,
		Poll:      cfg.Poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not start tailing %s: %w", path, err)
	}

	f := &Follower{
		tail:  t,
		lines: make(chan Line),
	}

	f.tomb.Go(f.pump)

	return f, nil
}

// Lines returns the channel of lines read from the file. It is closed
// when the follower stops or dies.
func (f *Follower) Lines() <-chan Line {
	return f.lines
}

// Dying is closed when the follower is shutting down.
func (f *Follower) Dying() <-chan struct{} {
	return f.tomb.Dying()
}

// Stop ends the tail and waits for the pump to drain. Safe to call
// more than once.
func (f *Follower) Stop() error {
	f.tomb.Kill(nil)

	if err := f.tail.Stop(); err != nil {
		return err
	}

	return f.tomb.Wait()
}

func (f *Follower) pump() error {
	defer close(f.lines)

	for {
		select {
		case <-f.tomb.Dying():
			return nil
		case <-f.tail.Dying():
			return f.tail.Err()
		case line := <-f.tail.Lines:
			if line == nil {
				continue
			}

			if line.Err != nil {
				return line.Err
			}

			metrics.LogtailLinesRead.WithLabelValues(f.tail.Filename).Inc()

			select {
			case f.lines <- Line{Text: line.Text, Time: line.Time}:
			case <-f.tomb.Dying():
				return nil
			}
		}
	}
}
