// Package negotiate decides which console channel can reach a running
// game instance. The RCON network channel only works when the engine
// was started with -usercon and has opened its listening socket;
// before the process is even queryable no decision can be made at all.
package negotiate

import (
	"context"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	log "github.com/sirupsen/logrus"
)

// userconFlag is the engine launch flag that enables the RCON listener.
const userconFlag = "-usercon"

const defaultPollInterval = 3 * time.Second

// Eligibility is the three-valued outcome of channel negotiation.
// Unknown is a real state, not a failure: it means the process cannot
// be queried yet, and it must never be collapsed into NotEligible.
type Eligibility int

const (
	Unknown Eligibility = iota
	Eligible
	NotEligible
)

func (e Eligibility) String() string {
	switch e {
	case Eligible:
		return "eligible"
	case NotEligible:
		return "not eligible"
	case Unknown:
		return "unknown"
	}

	return "invalid"
}

// Inspector is the slice of a live process handle the negotiator
// needs. *process.Process from gopsutil satisfies it.
type Inspector interface {
	CmdlineSliceWithContext(ctx context.Context) ([]string, error)
	ConnectionsWithContext(ctx context.Context) ([]gnet.ConnectionStat, error)
}

// Negotiator inspects one live process to settle the channel choice.
type Negotiator struct {
	proc     Inspector
	interval time.Duration
	logger   *log.Entry
}

// New creates a negotiator for proc, which may be nil while the game
// has not been discovered yet.
func New(proc Inspector, logger *log.Entry) *Negotiator {
	if logger == nil {
		logger = log.WithField("component", "negotiate")
	}

	return &Negotiator{
		proc:     proc,
		interval: defaultPollInterval,
		logger:   logger,
	}
}

// WithInterval overrides the AwaitDecision polling cadence.
func (n *Negotiator) WithInterval(d time.Duration) *Negotiator {
	n.interval = d
	return n
}

// Eligibility is a point-in-time check of the RCON channel:
//
//   - no live process handle: Unknown
//   - launch command line lacks -usercon: NotEligible
//   - -usercon present: Eligible only if the process currently holds
//     an open connection, which confirms the engine is listening
//
// A freshly spawned engine can report the flag before the socket is
// up, so NotEligible here is valid only at this instant and callers
// are expected to re-poll rather than trust one snapshot.
func (n *Negotiator) Eligibility(ctx context.Context) Eligibility {
	if n.proc == nil {
		return Unknown
	}

	cmdline, err := n.proc.CmdlineSliceWithContext(ctx)
	if err != nil {
		// Still starting or already gone, either way not queryable.
		n.logger.Debugf("could not read cmdline: %s", err)
		return Unknown
	}

	hasFlag := false

	for _, arg := range cmdline {
		if arg == userconFlag {
			hasFlag = true
			break
		}
	}

	if !hasFlag {
		return NotEligible
	}

	conns, err := n.proc.ConnectionsWithContext(ctx)
	if err != nil {
		n.logger.Debugf("could not read connections: %s", err)
		return Unknown
	}

	if len(conns) == 0 {
		return NotEligible
	}

	return Eligible
}

// AwaitDecision polls Eligibility on a fixed interval until it yields
// a non-Unknown result or ctx ends. No decision is ever fabricated
// while the process is not queryable.
func (n *Negotiator) AwaitDecision(ctx context.Context) (Eligibility, error) {
	if e := n.Eligibility(ctx); e != Unknown {
		return e, nil
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Unknown, ctx.Err()
		case <-ticker.C:
			if e := n.Eligibility(ctx); e != Unknown {
				n.logger.Debugf("negotiation settled: %s", e)
				return e, nil
			}
		}
	}
}
