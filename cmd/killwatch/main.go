// killwatch attaches to a running game (launching one if needed) and
// reacts to every kill scored by the named player by running a "lenny"
// console alias ingame.
//
// Usage: killwatch <config.yaml> <player name>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/console"
	"github.com/srctools/srcexec/pkg/engine"
	"github.com/srctools/srcexec/pkg/logging"
	"github.com/srctools/srcexec/pkg/logtail"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: killwatch <config.yaml> <player name>")
		os.Exit(1)
	}

	cfg, err := engine.LoadConfig(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}

	player := os.Args[2]
	killLine := regexp.MustCompile(regexp.QuoteMeta(player) + ` killed .+ with (\w+)\.`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	game, err := engine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := game.Launch(ctx); err != nil {
		log.Fatal(err)
	}

	follower, err := logtail.Follow(game.LogFile().Path(), logtail.FollowConfig{})
	if err != nil {
		log.Fatal(err)
	}

	log.Info("now watching for kills, interrupt to stop")

	// One negotiated console held for the whole session instead of a
	// fresh channel per command.
	err = game.WithConsole(ctx, func(c console.Console) error {
		for {
			select {
			case <-ctx.Done():
				return follower.Stop()
			case line, ok := <-follower.Lines():
				if !ok {
					// The tail died on its own; Stop reaps it and
					// surfaces whatever killed it.
					return follower.Stop()
				}

				if !killLine.MatchString(line.Text) {
					continue
				}

				// Assumes a console alias named lenny already exists.
				if _, err := c.Run("lenny"); err != nil {
					log.Warningf("could not run lenny: %s", err)
				}
			}
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}
