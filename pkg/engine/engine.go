// Package engine launches or attaches to a game instance and exposes
// the two surfaces everything else builds on: the console log file it
// redirects the engine into, and a negotiated command console.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/console"
	"github.com/srctools/srcexec/pkg/logtail"
	"github.com/srctools/srcexec/pkg/negotiate"
	"github.com/srctools/srcexec/pkg/procfind"
)

// logPrefix names the per-session console logs this controller owns
// inside the game directory.
const logPrefix = "srcexec-"

// ErrNotRunning is returned when a console command is addressed to a
// game process that is no longer there.
var ErrNotRunning = errors.New("game process is not running")

// Game controls one game instance: its launch parameters, its console
// log redirection and its command console. The session token is unique
// per controller and doubles as the RCON shared secret.
type Game struct {
	cfg     GameConfig
	exeName string
	token   string
	logName string
	logPath string
	logfile *logtail.LogFile
	logger  *log.Entry

	mu       sync.Mutex
	proc     *process.Process
	console  console.Console
	hijacked bool
}

// New builds a controller from a validated configuration, generates
// the session token, derives the log path and sweeps stale logs left
// over by prior sessions.
func New(cfg GameConfig) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := sessionToken()
	logName := logPrefix + token + ".log"
	logPath := filepath.Join(cfg.GameDir, logName)
	logger := log.WithField("game", filepath.Base(cfg.ExePath))

	g := &Game{
		cfg:     cfg,
		exeName: filepath.Base(cfg.ExePath),
		token:   token,
		logName: logName,
		logPath: logPath,
		logfile: logtail.NewLogFile(logPath, logger),
		logger:  logger,
	}

	g.cleanupStaleLogs()

	return g, nil
}

// sessionToken is the last segment of a fresh UUIDv4, short enough for
// a command line and unique enough for a per-launch secret.
func sessionToken() string {
	id := uuid.New().String()
	return id[strings.LastIndex(id, "-")+1:]
}

// LogFile returns the tailed console log of this session.
func (g *Game) LogFile() *logtail.LogFile {
	return g.logfile
}

// LogName returns the bare name of the session's console log.
func (g *Game) LogName() string {
	return g.logName
}

// Token returns the session token.
func (g *Game) Token() string {
	return g.token
}

// Hijacked reports whether the controller attached to a pre-existing
// instance instead of spawning its own.
func (g *Game) Hijacked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.hijacked
}

// Process returns the live process handle, nil when not running.
func (g *Game) Process() *process.Process {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.proc
}

// Launch starts the game with the assembled parameter list plus the
// caller's extra params, or attaches to an already-running instance.
// In the attach case nothing is spawned, the existing instance is only
// told to redirect its console into our log file. Launch blocks until
// the log file exists on disk, since it is the synchronization point
// every watcher depends on.
func (g *Game) Launch(ctx context.Context, params ...string) error {
	existing, err := procfind.Find(ctx, g.exeName)
	if err != nil {
		return err
	}

	if existing != nil {
		g.logger.Infof("found running instance (pid %d), hijacking", existing.Pid)

		g.mu.Lock()
		g.proc = existing
		g.hijacked = true
		g.mu.Unlock()

		_, err := g.Run(ctx, "con_logfile", g.logName)

		return err
	}

	var (
		exePath string
		args    []string
	)

	steam := g.cfg.SteamExe != "" && g.cfg.AppID != 0

	if steam {
		// Steam launches cannot be hijacked and cannot carry our
		// flags; make sure no stray instance survives.
		if err := procfind.Terminate(ctx, g.exeName); err != nil {
			g.logger.Warningf("could not terminate stray instance: %s", err)
		}

		exePath = g.cfg.SteamExe
		args = []string{"-applaunch", strconv.Itoa(g.cfg.AppID)}
	} else {
		exePath = g.cfg.ExePath
		args = []string{"-hijack"}
	}

	args = append(args, "-game", g.cfg.GameDir)
	args = append(args, "+log", "0", "+sv_logflush", "1", "+con_logfile", g.logName)

	if !steam {
		// A spawn we control gets the RCON flags; whether the
		// listener actually comes up is settled later by negotiation.
		args = append(args, "-usercon", "+ip", "0.0.0.0", "+rcon_password", g.token)
	}

	args = append(args, params...)

	g.logger.Infof("launching %s", exePath)
	g.logger.Debugf("launch parameters: %v", args)

	cmd := exec.Command(exePath, args...)
	cmd.Dir = g.cfg.GameDir
	cmd.SysProcAttr = procfind.DetachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not launch %s: %w", exePath, err)
	}

	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		g.logger.Warningf("could not release launched process: %s", err)
	}

	g.mu.Lock()
	g.hijacked = false
	g.mu.Unlock()

	if steam {
		// Steam spawns the game itself; rediscover the real process
		// once it shows up. The log file wait below paces us.
		g.logger.Debug("steam launch, game process will be discovered later")
	} else {
		proc, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			return fmt.Errorf("launched process %d disappeared: %w", pid, err)
		}

		g.mu.Lock()
		g.proc = proc
		g.mu.Unlock()
	}

	return g.awaitLogFile(ctx)
}

// awaitLogFile polls until the engine has created the session log.
func (g *Game) awaitLogFile(ctx context.Context) error {
	g.logger.Debugf("waiting for %s", g.logPath)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if _, err := os.Stat(g.logPath); err != nil {
			return struct{}{}, fmt.Errorf("log file not present yet: %w", err)
		}

		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(g.cfg.logPollInterval)))
	if err != nil {
		return fmt.Errorf("game never created %s: %w", g.logPath, err)
	}

	// Steam path: now that the engine is up, grab its handle.
	g.mu.Lock()
	needsDiscovery := g.proc == nil
	g.mu.Unlock()

	if needsDiscovery {
		proc, err := procfind.Find(ctx, g.exeName)
		if err != nil {
			return err
		}

		if proc == nil {
			return ErrNotRunning
		}

		g.mu.Lock()
		g.proc = proc
		g.mu.Unlock()
	}

	return nil
}

// Console negotiates the channel choice for the live process, blocking
// until eligibility settles, and opens the matching backend. The
// caller owns the returned console; WithConsole is the scoped variant.
func (g *Game) Console(ctx context.Context) (console.Console, error) {
	g.mu.Lock()
	proc := g.proc
	g.mu.Unlock()

	if proc == nil {
		return nil, ErrNotRunning
	}

	neg := negotiate.New(proc, g.logger).WithInterval(g.cfg.logPollInterval)

	decision, err := neg.AwaitDecision(ctx)
	if err != nil {
		return nil, fmt.Errorf("channel negotiation: %w", err)
	}

	if decision == negotiate.Eligible {
		return console.NewRconConsole(ctx, g.cfg.RconHost, g.cfg.RconPort, g.token)
	}

	// The injection channel needs no secret, only the executable and
	// the game directory; the token stays an RCON concern.
	return console.NewExecConsole(g.cfg.ExePath, g.cfg.GameDir)
}

// WithConsole opens a negotiated console, holds it for the duration of
// fn (Run calls inside fn reuse it instead of reopening a channel per
// command) and closes it on every exit path.
func (g *Game) WithConsole(ctx context.Context, fn func(console.Console) error) error {
	c, err := g.Console(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.console = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.console = nil
		g.mu.Unlock()
	}()

	return console.WithConsole(c, fn)
}

// Run forwards one command to the active console. Outside a
// WithConsole scope it negotiates and opens a channel for just this
// command. Commands to an absent process fail with ErrNotRunning, they
// are never silently dropped.
func (g *Game) Run(ctx context.Context, command string, params ...string) (string, error) {
	g.mu.Lock()
	proc := g.proc
	held := g.console
	g.mu.Unlock()

	if proc == nil {
		return "", ErrNotRunning
	}

	if running, err := proc.IsRunningWithContext(ctx); err == nil && !running {
		return "", fmt.Errorf("%w: pid %d is gone", ErrNotRunning, proc.Pid)
	}

	if held != nil {
		return held.Run(command, params...)
	}

	c, err := g.Console(ctx)
	if err != nil {
		return "", err
	}

	var resp string

	err = console.WithConsole(c, func(c console.Console) error {
		r, err := c.Run(command, params...)
		resp = r

		return err
	})

	return resp, err
}

// Quit tells the engine to stop writing to the session log, terminates
// the tracked (or re-discovered) process and clears the handle.
// Idempotent when the game is already gone.
func (g *Game) Quit(ctx context.Context) error {
	// Release the log first so the next session's sweep can delete it.
	if _, err := g.Run(ctx, "con_logfile", `""`); err != nil && !errors.Is(err, ErrNotRunning) {
		g.logger.Warningf("could not release console log: %s", err)
	}

	g.mu.Lock()
	proc := g.proc
	g.proc = nil
	g.mu.Unlock()

	if proc == nil {
		var err error

		proc, err = procfind.Find(ctx, g.exeName)
		if err != nil {
			return err
		}
	}

	if proc == nil {
		return nil
	}

	if err := proc.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("could not terminate %s (pid %d): %w", g.exeName, proc.Pid, err)
	}

	g.logger.Info("game terminated")

	return nil
}

// cleanupStaleLogs removes session logs left behind by prior runs.
// Best effort: a log still held open by a live engine will refuse to
// go, which does not affect this session.
func (g *Game) cleanupStaleLogs() {
	stale, err := filepath.Glob(filepath.Join(g.cfg.GameDir, logPrefix+"*.log"))
	if err != nil {
		return
	}

	for _, f := range stale {
		if f == g.logPath {
			continue
		}

		if err := os.Remove(f); err != nil {
			g.logger.Debugf("could not remove stale log %s: %s", f, err)
			continue
		}

		g.logger.Debugf("removed stale log %s", f)
	}
}
