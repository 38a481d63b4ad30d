package logwatch

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/crowdsecurity/go-cs-lib/cstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srctools/srcexec/pkg/logtail"
)

func TestNewPatternTriggerValidation(t *testing.T) {
	lf := logtail.NewLogFile(filepath.Join(t.TempDir(), "console.log"), nil)

	tests := []struct {
		name        string
		logfile     *logtail.LogFile
		pattern     string
		expectedErr string
	}{
		{
			name:        "nil logfile",
			logfile:     nil,
			pattern:     "ok",
			expectedErr: "needs a logfile",
		},
		{
			name:        "invalid pattern",
			logfile:     lf,
			pattern:     "[asd",
			expectedErr: "could not compile pattern",
		},
		{
			name:    "valid",
			logfile: lf,
			pattern: `\.nav' saved\.`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPatternTrigger(tc.logfile, tc.pattern, nil)
			cstest.AssertErrorContains(t, err, tc.expectedErr)
		})
	}
}

func TestPatternMatchesContentPresentAtStart(t *testing.T) {
	// The log already holds the milestone before the watcher starts:
	// the created/initial modified notification must still find it.
	path := filepath.Join(t.TempDir(), "console.log")
	lf := logtail.NewLogFile(path, nil)

	appendTo(t, path, "Redownloading all lightmaps\n")

	var fired atomic.Int32

	trigger, err := NewPatternTrigger(lf, "Redownloading all lightmaps", func(...any) (bool, error) {
		fired.Add(1)
		return true, nil
	})
	require.NoError(t, err)

	success, err := trigger.OnCreated(path)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, int32(1), fired.Load())
}

func TestPatternFiresOnAppendingWriteOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")

	appendTo(t, path, "loading...\n")

	// Construction ingests the pre-existing text: the trigger only
	// ever sees what is appended afterwards.
	lf := logtail.NewLogFile(path, nil)

	var fired atomic.Int32

	trigger, err := NewPatternTrigger(lf, `\.nav' saved\.`, func(...any) (bool, error) {
		fired.Add(1)
		return true, nil
	})
	require.NoError(t, err)

	// Nothing new yet: no match, no callback.
	success, err := trigger.OnModified(path)
	require.NoError(t, err)
	assert.False(t, success)
	assert.Equal(t, int32(0), fired.Load())

	appendTo(t, path, "map.nav' saved.\n")

	success, err = trigger.OnModified(path)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, int32(1), fired.Load())
}

func TestPatternCallbackArgsAreBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lf := logtail.NewLogFile(path, nil)

	var got []any

	trigger, err := NewPatternTrigger(lf, "milestone", func(args ...any) (bool, error) {
		got = args
		return true, nil
	}, "first", 2)
	require.NoError(t, err)

	appendTo(t, path, "a milestone happened\n")

	success, err := trigger.OnModified(path)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []any{"first", 2}, got)
}

func TestPatternCallbackErrorPropagates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lf := logtail.NewLogFile(path, nil)

	boom := errors.New("genuine bug in calling code")

	trigger, err := NewPatternTrigger(lf, "milestone", func(...any) (bool, error) {
		return false, boom
	})
	require.NoError(t, err)

	appendTo(t, path, "a milestone happened\n")

	_, err = trigger.OnModified(path)
	require.ErrorIs(t, err, boom)
}

func TestPatternWithoutCallbackNeverSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lf := logtail.NewLogFile(path, nil)

	trigger, err := NewPatternTrigger(lf, "milestone", nil)
	require.NoError(t, err)

	appendTo(t, path, "a milestone happened\n")

	success, err := trigger.OnModified(path)
	require.NoError(t, err)
	assert.False(t, success)
}

func TestPatternSessionEndToEnd(t *testing.T) {
	// Polling session around a trigger: the milestone is written while
	// the session runs and stops it through the success threshold.
	path := filepath.Join(t.TempDir(), "console.log")
	lf := logtail.NewLogFile(path, nil)

	var fired atomic.Int32

	s, err := NewPatternSession(lf, `\.nav' saved\.`, func(...any) (bool, error) {
		fired.Add(1)
		return true, nil
	}, Options{Poll: true, PollInterval: testPollInterval})
	require.NoError(t, err)

	require.NoError(t, s.Start())

	appendTo(t, path, "loading...\n")
	appendTo(t, path, "map.nav' saved.\n")

	require.NoError(t, s.Wait())
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.Running())
}
