// Package procfind is a thin boundary over the OS process table: find
// the live instance of an executable by name, or terminate it. The
// game ships no IPC of its own, so discovery-by-name is how automation
// attaches to an already-running instance.
package procfind

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
)

// Find returns the most recently created live process whose name
// matches exeName, or nil when none is running. Processes that vanish
// or deny access mid-enumeration are skipped, such races are routine
// on a busy process table.
func Find(ctx context.Context, exeName string) (*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not enumerate processes: %w", err)
	}

	var (
		newest     *process.Process
		newestTime int64 = -1
	)

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Gone or unreadable, skip it.
			continue
		}

		if name != exeName {
			continue
		}

		created, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}

		if created > newestTime {
			newest = p
			newestTime = created
		}
	}

	return newest, nil
}

// Terminate finds the newest instance of exeName and asks it to exit.
// An absent process is a no-op.
func Terminate(ctx context.Context, exeName string) error {
	p, err := Find(ctx, exeName)
	if err != nil {
		return err
	}

	if p == nil {
		log.Debugf("no %s process to terminate", exeName)
		return nil
	}

	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("could not terminate %s (pid %d): %w", exeName, p.Pid, err)
	}

	return nil
}
