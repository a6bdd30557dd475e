package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/munin-agent/munin/keystore"
)

var errAlreadyFramed = errors.New("munin: file is already encrypted")

// runEncrypt implements `encrypt <config-path>`: wraps the whole file in
// the keystore's magic-prefixed blob framing (spec.md section 1's opaque
// cipher contract; keystore.Sniff is how a subsequent load detects it).
func runEncrypt(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: munin encrypt <config-path>")
		return exitUserError
	}
	path := args[0]

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encrypt: reading", path, ":", err)
		return exitUserError
	}
	if keystore.Sniff(raw) {
		fmt.Fprintln(os.Stderr, "encrypt:", errAlreadyFramed)
		return exitUserError
	}

	ks, err := unlockKeystore("new keystore passphrase: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encrypt: reading passphrase:", err)
		return exitUserError
	}

	framed, err := ks.Encrypt(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encrypt: sealing", path, ":", err)
		return exitRuntimeFault
	}
	if err := os.WriteFile(path, framed, 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "encrypt: writing", path, ":", err)
		return exitRuntimeFault
	}

	fmt.Println("encrypted", path)
	return exitOK
}
