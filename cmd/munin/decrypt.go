package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/munin-agent/munin/keystore"
)

var errNotFramed = errors.New("munin: file is not encrypted")

// runDecrypt implements `decrypt <config-path>`: the inverse of
// runEncrypt, unwrapping the whole-file blob framing back to plaintext.
func runDecrypt(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: munin decrypt <config-path>")
		return exitUserError
	}
	path := args[0]

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt: reading", path, ":", err)
		return exitUserError
	}
	if !keystore.Sniff(raw) {
		fmt.Fprintln(os.Stderr, "decrypt:", errNotFramed)
		return exitUserError
	}

	ks, err := unlockKeystore("keystore passphrase: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt: reading passphrase:", err)
		return exitUserError
	}

	plain, err := ks.Decrypt(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt: opening", path, ":", err)
		return exitUserError
	}
	if err := os.WriteFile(path, plain, 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "decrypt: writing", path, ":", err)
		return exitRuntimeFault
	}

	fmt.Println("decrypted", path)
	return exitOK
}
