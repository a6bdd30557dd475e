// Command munin is the agent host process and its command-line tools
// (spec.md section on CLI): setup, gencert, encrypt, decrypt, and a
// default no-args invocation that runs the agent until signaled.
//
// Structured as one function per verb dispatched from main, following
// the teacher's uqtokgen.go single-purpose-tool shape repeated for each
// subcommand rather than a generic flag-package command tree.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	exitOK          = 0
	exitUserError   = 1
	exitRuntimeFault = 2
)

var usage = `Usage: munin [command]

Commands:
  setup               interactively generate an initial configuration
  gencert [path] [password]
                      generate a self-signed control-plane certificate
  encrypt <config>    encrypt a plaintext configuration file in place
  decrypt <config>    decrypt an encrypted configuration file in place
  (no command)        run the agent using ./config.toml
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		os.Exit(runAgent("config.toml"))
	}

	var code int
	switch os.Args[1] {
	case "setup":
		code = runSetup(os.Args[2:])
	case "gencert":
		code = runGencert(os.Args[2:])
	case "encrypt":
		code = runEncrypt(os.Args[2:])
	case "decrypt":
		code = runDecrypt(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		code = exitOK
	default:
		fmt.Print(usage)
		code = exitUserError
	}
	os.Exit(code)
}
