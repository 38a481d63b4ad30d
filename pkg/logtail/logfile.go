package logtail

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/metrics"
)

// LogFile is an incremental reader over a single growing console log.
// It remembers a byte offset bookmark so that successive Ingest calls
// deliver every byte exactly once, and accumulates everything read so
// far. The external process is the only writer; we only ever read.
type LogFile struct {
	path     string
	logger   *log.Entry
	mu       sync.Mutex
	logs     strings.Builder
	bookmark int64
	lastSize int64
}

// NewLogFile creates a reader for path. If the file already exists the
// initial ingest happens immediately so the bookmark reflects content
// written before we started; a file that does not exist yet is fine and
// defers the first read to the first Ingest call.
func NewLogFile(path string, logger *log.Entry) *LogFile {
	if logger == nil {
		logger = log.WithField("component", "logtail")
	}

	lf := &LogFile{
		path:   path,
		logger: logger.WithField("file", path),
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := lf.Ingest(); err != nil {
			// Locked or unreadable at construction time. The next
			// Ingest retries from the same bookmark, nothing is lost.
			lf.logger.Warningf("initial ingest failed: %s", err)
		}
	}

	return lf
}

// Path returns the path of the watched file.
func (lf *LogFile) Path() string {
	return lf.path
}

// Logs returns everything accumulated across all Ingest calls.
func (lf *LogFile) Logs() string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	return lf.logs.String()
}

// Bookmark returns the current byte offset. For testing purposes.
func (lf *LogFile) Bookmark() int64 {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	return lf.bookmark
}

// Ingest resumes reading from the bookmark to the current end of file,
// appends the new content to the accumulated buffer, advances the
// bookmark and returns exactly the newly read text. A file that does
// not exist yet yields an empty string and no error. Any other I/O
// failure leaves the bookmark where it was so the caller can retry the
// same range on the next cycle.
func (lf *LogFile) Ingest() (string, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	fi, err := os.Stat(lf.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("could not stat %s: %w", lf.path, err)
	}

	// The engine reopened the log with con_logfile and truncated it.
	// That starts a new write session, the one sanctioned bookmark reset.
	if fi.Size() < lf.lastSize {
		lf.logger.Debugf("file truncated (%d -> %d), resetting bookmark", lf.lastSize, fi.Size())
		lf.bookmark = 0
	}

	if fi.Size() <= lf.bookmark {
		lf.lastSize = fi.Size()
		return "", nil
	}

	fd, err := os.Open(lf.path)
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", lf.path, err)
	}
	defer fd.Close()

	if _, err := fd.Seek(lf.bookmark, io.SeekStart); err != nil {
		return "", fmt.Errorf("could not seek in %s: %w", lf.path, err)
	}

	since, lines, err := readChunks(bufio.NewReader(fd))
	if err != nil {
		// Nothing is committed: the bookmark still points at the
		// start of the failed range and the next cycle reads the very
		// same bytes again. Committing a partial read here would let
		// callers that discard the text on error skip those bytes for
		// good.
		return "", fmt.Errorf("could not read %s: %w", lf.path, err)
	}

	lf.logs.WriteString(since)
	lf.bookmark += int64(len(since))
	lf.lastSize = fi.Size()
	metrics.LogtailLinesRead.WithLabelValues(lf.path).Add(float64(lines))

	return since, nil
}

// readChunks drains r line by line and returns the consumed text and
// its chunk count. A failure poisons the whole batch: no partial
// result comes back, so the caller commits nothing.
func readChunks(r *bufio.Reader) (string, int, error) {
	var (
		sb    strings.Builder
		lines int
	)

	for {
		chunk, err := r.ReadString('\n')
		if chunk != "" {
			sb.WriteString(chunk)
			lines++
		}

		if err != nil {
			if err == io.EOF {
				return sb.String(), lines, nil
			}

			return "", 0, err
		}
	}
}
