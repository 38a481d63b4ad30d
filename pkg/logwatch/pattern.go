package logwatch

import (
	"errors"
	"fmt"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/logtail"
)

// Callback is invoked when the watched pattern matches freshly
// ingested log text. It receives the arguments bound at construction
// and its boolean result is the success signal counted toward the
// session threshold. An error is a genuine failure and propagates out
// of the watcher, it is never reinterpreted as "not successful".
type Callback func(args ...any) (bool, error)

// PatternTrigger is a Handler that, on each modification of the log
// file, ingests the newly appended text, searches it for a pattern and
// fires the callback on a match. Creation events delegate to the
// modification path so a freshly recreated file that already holds the
// target text is caught immediately.
type PatternTrigger struct {
	BaseHandler

	logfile  *logtail.LogFile
	re       *regexp.Regexp
	callback Callback
	args     []any
	logger   *log.Entry
}

// NewPatternTrigger compiles pattern and binds callback with args.
// The pattern is an unanchored search, a substring match anywhere in
// the new text. Configuration problems (nil logfile, invalid pattern)
// fail here, never at event time.
func NewPatternTrigger(logfile *logtail.LogFile, pattern string, callback Callback, args ...any) (*PatternTrigger, error) {
	if logfile == nil {
		return nil, errors.New("a pattern trigger needs a logfile to ingest from")
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("could not compile pattern %q: %w", pattern, err)
	}

	return &PatternTrigger{
		logfile:  logfile,
		re:       re,
		callback: callback,
		args:     args,
		logger:   log.WithField("pattern", pattern),
	}, nil
}

// OnModified pulls the newly tailed text and tests it against the
// pattern. A transient ingest failure skips this cycle: the bookmark
// has not advanced, the same bytes come back on the next notification.
func (p *PatternTrigger) OnModified(string) (bool, error) {
	since, err := p.logfile.Ingest()
	if err != nil {
		p.logger.Warningf("ingest failed, skipping cycle: %s", err)
		return false, nil
	}

	if since == "" || !p.re.MatchString(since) {
		return false, nil
	}

	p.logger.Debug("pattern matched")

	if p.callback == nil {
		return false, nil
	}

	return p.callback(p.args...)
}

// OnCreated treats a (re)created log file like a modification, so
// content already present by the time the notification arrives is
// checked right away.
func (p *PatternTrigger) OnCreated(path string) (bool, error) {
	return p.OnModified(path)
}

// NewPatternSession wires a PatternTrigger into its own watch session.
func NewPatternSession(logfile *logtail.LogFile, pattern string, callback Callback, opts Options, args ...any) (*Session, error) {
	trigger, err := NewPatternTrigger(logfile, pattern, callback, args...)
	if err != nil {
		return nil, err
	}

	return NewSession(logfile, trigger, opts), nil
}
