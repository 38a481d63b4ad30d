// navgen launches a game from a YAML config, waits for it to finish
// loading into a map, generates a navigation mesh and quits the game
// once the mesh is saved.
//
// Usage: navgen <config.yaml> [extra launch params...]
package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/srctools/srcexec/pkg/engine"
	"github.com/srctools/srcexec/pkg/logging"
	"github.com/srctools/srcexec/pkg/logwatch"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: navgen <config.yaml> [extra launch params...]")
		os.Exit(1)
	}

	cfg, err := engine.LoadConfig(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	game, err := engine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := game.Launch(ctx, os.Args[2:]...); err != nil {
		log.Fatal(err)
	}

	log.Info("waiting for the game to load into the map...")

	loaded, err := logwatch.NewPatternSession(
		game.LogFile(),
		"Redownloading all lightmaps",
		func(...any) (bool, error) { return true, nil },
		logwatch.Options{Block: true},
	)
	if err != nil {
		log.Fatal(err)
	}

	if err := loaded.Start(); err != nil {
		log.Fatal(err)
	}

	log.Info("game finished loading, generating the navmesh")

	if _, err := game.Run(ctx, "nav_generate"); err != nil {
		log.Fatal(err)
	}

	saved, err := logwatch.NewPatternSession(
		game.LogFile(),
		`\.nav' saved\.`,
		func(...any) (bool, error) {
			if err := game.Quit(ctx); err != nil {
				log.Warningf("could not quit the game: %s", err)
			}

			log.Info("done!")

			return true, nil
		},
		logwatch.Options{},
	)
	if err != nil {
		log.Fatal(err)
	}

	if err := saved.Start(); err != nil {
		log.Fatal(err)
	}

	log.Info("watching the logs for the saved navmesh...")

	// Hold the process until the watcher has auto-stopped.
	logwatch.WaitAll()
}
