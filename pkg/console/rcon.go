package console

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/gorcon/rcon"
	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/metrics"
)

const (
	rconDialTimeout  = 5 * time.Second
	rconDialInterval = 1 * time.Second
	rconDialTries    = 10
)

// RconConsole drives the game over the RCON network protocol. The
// engine may advertise -usercon before its listener is actually up, so
// the dial retries on a constant interval.
type RconConsole struct {
	conn   *rcon.Conn
	addr   string
	logger *log.Entry
}

// NewRconConsole connects and authenticates to the RCON listener at
// host:port with the shared secret. Failure to reach the listener
// after all retries is a channel failure, not a silent no-op.
func NewRconConsole(ctx context.Context, host string, port int, password string) (*RconConsole, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	logger := log.WithField("rcon", addr)

	conn, err := backoff.Retry(ctx, func() (*rcon.Conn, error) {
		c, err := rcon.Dial(addr, password, rcon.SetDialTimeout(rconDialTimeout))
		if err != nil {
			logger.Debugf("dial failed, retrying: %s", err)
			return nil, err
		}

		return c, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(rconDialInterval)),
		backoff.WithMaxTries(rconDialTries),
	)
	if err != nil {
		return nil, fmt.Errorf("could not open rcon session to %s: %w", addr, err)
	}

	logger.Debug("rcon session open")

	return &RconConsole{
		conn:   conn,
		addr:   addr,
		logger: logger,
	}, nil
}

// Run submits the command and returns the engine's response.
func (c *RconConsole) Run(command string, params ...string) (string, error) {
	line := commandLine(command, params)
	c.logger.Debugf("running %q", line)

	resp, err := c.conn.Execute(line)
	if err != nil {
		return "", fmt.Errorf("rcon %q: %w", line, err)
	}

	metrics.ConsoleCommandsSent.WithLabelValues("rcon").Inc()

	return resp, nil
}

// Close ends the RCON session.
func (c *RconConsole) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}
