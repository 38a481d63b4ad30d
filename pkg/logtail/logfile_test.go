package logtail

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTo(t *testing.T, path, text string) {
	t.Helper()

	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)

	_, err = fd.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, fd.Close())
}

func TestIngestMissingFile(t *testing.T) {
	lf := NewLogFile(filepath.Join(t.TempDir(), "console.log"), nil)

	since, err := lf.Ingest()
	require.NoError(t, err)
	assert.Empty(t, since)
	assert.Empty(t, lf.Logs())
}

func TestIngestNoDuplicationNoGap(t *testing.T) {
	// Whatever way the writer chunks its appends, the concatenation of
	// everything Ingest returns must equal exactly the bytes written.
	tests := []struct {
		name   string
		chunks []string
	}{
		{
			name:   "line per append",
			chunks: []string{"one\n", "two\n", "three\n"},
		},
		{
			name:   "multiple lines per append",
			chunks: []string{"one\ntwo\n", "three\nfour\nfive\n"},
		},
		{
			name:   "append without trailing newline",
			chunks: []string{"loading", "...\n", "done\n"},
		},
		{
			name:   "empty append interleaved",
			chunks: []string{"one\n", "", "two\n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "console.log")
			lf := NewLogFile(path, nil)

			collected := ""
			written := ""

			for _, chunk := range tc.chunks {
				appendTo(t, path, chunk)
				written += chunk

				since, err := lf.Ingest()
				require.NoError(t, err)

				assert.Equal(t, chunk, since)
				collected += since
			}

			// A second ingest with no writes must deliver nothing.
			since, err := lf.Ingest()
			require.NoError(t, err)
			assert.Empty(t, since)

			assert.Equal(t, written, collected)
			assert.Equal(t, written, lf.Logs())
			assert.Equal(t, int64(len(written)), lf.Bookmark())
		})
	}
}

func TestIngestPreExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	appendTo(t, path, "already here\n")

	// Construction ingests pre-existing content immediately.
	lf := NewLogFile(path, nil)
	assert.Equal(t, "already here\n", lf.Logs())

	// ...so the first explicit ingest only sees what came after.
	appendTo(t, path, "and more\n")

	since, err := lf.Ingest()
	require.NoError(t, err)
	assert.Equal(t, "and more\n", since)
}

func TestIngestBookmarkNeverRegresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lf := NewLogFile(path, nil)

	appendTo(t, path, "one\ntwo\n")

	_, err := lf.Ingest()
	require.NoError(t, err)

	before := lf.Bookmark()

	for range 3 {
		_, err := lf.Ingest()
		require.NoError(t, err)
		assert.Equal(t, before, lf.Bookmark())
	}
}

func TestReadChunksFailureCommitsNothing(t *testing.T) {
	// The reader delivers two full lines and then fails. The text
	// consumed before the failure must not leak out: a caller that
	// committed it and then dropped the returned text on the error
	// would advance the bookmark past bytes nobody got to inspect.
	r := bufio.NewReader(iotest.TimeoutReader(strings.NewReader("one\ntwo\n")))

	text, lines, err := readChunks(r)
	require.ErrorIs(t, err, iotest.ErrTimeout)
	assert.Empty(t, text)
	assert.Zero(t, lines)
}

func TestIngestFailureLeavesBookmark(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix file modes")
	}

	if os.Geteuid() == 0 {
		t.Skip("file modes do not apply to root")
	}

	path := filepath.Join(t.TempDir(), "console.log")
	lf := NewLogFile(path, nil)

	appendTo(t, path, "one\n")

	_, err := lf.Ingest()
	require.NoError(t, err)

	before := lf.Bookmark()

	appendTo(t, path, "two\n")
	require.NoError(t, os.Chmod(path, 0o000))

	_, err = lf.Ingest()
	require.Error(t, err)
	assert.Equal(t, before, lf.Bookmark())

	// Once the file is readable again the failed range comes back in
	// full, nothing was skipped.
	require.NoError(t, os.Chmod(path, 0o644))

	since, err := lf.Ingest()
	require.NoError(t, err)
	assert.Equal(t, "two\n", since)
}

func TestIngestTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lf := NewLogFile(path, nil)

	appendTo(t, path, "first session, long line\n")

	_, err := lf.Ingest()
	require.NoError(t, err)

	// The engine reopened the log: shorter content, new write session.
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))

	since, err := lf.Ingest()
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", since)
	assert.Equal(t, int64(len("fresh\n")), lf.Bookmark())
}
