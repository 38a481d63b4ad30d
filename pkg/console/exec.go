package console

import (
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/metrics"
	"github.com/srctools/srcexec/pkg/procfind"
)

// ExecConsole injects commands into a running instance by launching
// the executable again with -hijack: the secondary launch forwards its
// +commands to the live instance and exits. No response ever comes
// back through this channel.
type ExecConsole struct {
	exePath string
	gameDir string
	logger  *log.Entry
}

// NewExecConsole validates the injection target. A missing or
// unrunnable executable fails here, at channel-open time.
func NewExecConsole(exePath, gameDir string) (*ExecConsole, error) {
	fi, err := os.Stat(exePath)
	if err != nil {
		return nil, fmt.Errorf("injection target %s is not runnable: %w", exePath, err)
	}

	if fi.IsDir() {
		return nil, fmt.Errorf("injection target %s is a directory", exePath)
	}

	return &ExecConsole{
		exePath: exePath,
		gameDir: gameDir,
		logger:  log.WithField("exec", exePath),
	}, nil
}

// Run injects the command. The secondary process is spawned detached,
// its absorption by the live instance is fire-and-forget.
func (c *ExecConsole) Run(command string, params ...string) (string, error) {
	args := []string{"-game", c.gameDir, "-hijack", "+" + command}
	args = append(args, params...)

	c.logger.Debugf("injecting %q", commandLine(command, params))

	cmd := exec.Command(c.exePath, args...)
	cmd.Dir = c.gameDir
	cmd.SysProcAttr = procfind.DetachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("could not inject %q: %w", command, err)
	}

	if err := cmd.Process.Release(); err != nil {
		c.logger.Warningf("could not release injector process: %s", err)
	}

	metrics.ConsoleCommandsSent.WithLabelValues("exec").Inc()

	return "", nil
}

// Close is a no-op, injection holds no persistent resources.
func (*ExecConsole) Close() error {
	return nil
}
