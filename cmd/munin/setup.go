package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/munin-agent/munin/config"
)

// runSetup implements the `setup` verb: an interactive wizard that
// writes a minimal, working configuration document -- one server entry,
// the control plane disabled by default, mesh disabled -- which the
// operator then edits and seals with `munin encrypt` (spec.md CLI
// section: "setup (interactive generation of initial configuration)").
func runSetup(args []string) int {
	path := "config.toml"
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(os.Stderr, "setup:", path, "already exists")
		return exitUserError
	}

	in := bufio.NewReader(os.Stdin)

	cfg := config.New()
	cfg.Name = ask(in, "agent name", "munin")

	sc := config.ServerConfig{
		ID:            "default",
		DisplayName:   ask(in, "network display name", "Libera Chat"),
		Host:          ask(in, "server host", "irc.libera.chat"),
		Port:          uint16(askUint(in, "server port", uint64(config.DefaultTLSPort))),
		TLS:           askBool(in, "use TLS", true),
		Nick:          ask(in, "nick", cfg.Name),
		Username:      ask(in, "username", cfg.Name),
		Realname:      ask(in, "realname", cfg.Name),
		AutoConnect:   true,
		AutoReconnect: true,
	}

	if pass := ask(in, "server password (blank for none)", ""); pass != "" {
		sc.ServerPass = config.NewSecret(pass)
	}

	cfg.Servers = []config.ServerConfig{sc}
	cfg.AccessDBPath = config.DefaultAccessDBPath
	cfg.TriggersDir = config.DefaultTriggersDir

	if askBool(in, "enable control plane", false) {
		cfg.ControlServer.Enabled = true
		cfg.ControlServer.Port = uint16(askUint(in, "control plane port", 8675))
		cfg.ControlServer.BindAddress = ask(in, "control plane bind address", "127.0.0.1")
		cfg.ControlServer.CertificatePath = ask(in, "control plane certificate (pfx) path", "munin.pfx")
		cfg.ControlServer.AuthToken = config.NewSecret(ask(in, "control plane auth token", ""))
	}

	ks, err := unlockKeystore("new keystore passphrase: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup: reading passphrase:", err)
		return exitUserError
	}
	if err := cfg.SealSecrets(ks); err != nil {
		fmt.Fprintln(os.Stderr, "setup: sealing secrets:", err)
		return exitRuntimeFault
	}
	if err := cfg.Save(path); err != nil {
		fmt.Fprintln(os.Stderr, "setup: writing", path, ":", err)
		return exitRuntimeFault
	}

	fmt.Println("wrote", path)
	return exitOK
}

func ask(in *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Fprintf(os.Stderr, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(os.Stderr, "%s: ", label)
	}
	line, _ := in.ReadString('\n')
	line = trimNewline(line)
	if line == "" {
		return def
	}
	return line
}

func askUint(in *bufio.Reader, label string, def uint64) uint64 {
	s := ask(in, label, strconv.FormatUint(def, 10))
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func askBool(in *bufio.Reader, label string, def bool) bool {
	defStr := "n"
	if def {
		defStr = "y"
	}
	s := ask(in, label+" (y/n)", defStr)
	return s == "y" || s == "Y" || s == "yes"
}
