package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"

	"github.com/munin-agent/munin/supervisor"
)

// runAgent is the default no-args verb: load configuration, build the
// supervisor, and run until SIGINT/SIGTERM (spec.md CLI section: "default
// no-args runs the agent host").
func runAgent(path string) int {
	log := log15.New()
	log.SetHandler(log15.LvlFilterHandler(log15.LvlInfo, log15.StreamHandler(os.Stdout, log15.LogfmtFormat())))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "run: no configuration at", path, "-- run `munin setup` first")
		return exitUserError
	}

	ks, err := unlockKeystore("keystore passphrase: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "run: reading passphrase:", err)
		return exitUserError
	}

	cfg, err := loadAgentConfig(path, ks)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run: loading", path, ":", err)
		return exitUserError
	}

	sup, err := supervisor.New(cfg, ks, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run: starting up:", err)
		return exitRuntimeFault
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("run: shutdown signal received")
		sup.Stop()
	}()

	if err := sup.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		return exitRuntimeFault
	}

	return exitOK
}
