// Command latypus-server runs the HTTP engine against a config file,
// per SPEC_FULL.md §6: a path argument, structured startup/shutdown
// logging, and process exit codes distinguishing config errors from
// runtime failures.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/app"
	"github.com/fast01/latypus/config"
)

const (
	exitOK = iota
	exitConfigError
	exitRuntimeError
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "latypus.conf", "path to the engine config file")
	logLevel := flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "latypus-server: %v\n", err)
		return exitConfigError
	}

	a, err := app.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "latypus-server: %v\n", err)
		return exitConfigError
	}

	if err := a.Run(); err != nil {
		log.WithError(err).Error("server exited with error")
		return exitRuntimeError
	}
	return exitOK
}
