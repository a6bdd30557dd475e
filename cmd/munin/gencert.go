package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"
)

const (
	certCommonName = "MuninAgent"
	certKeyBits    = 4096
	certValidity   = 10 * 365 * 24 * time.Hour
)

// runGencert implements the `gencert [path] [password]` verb: a
// self-signed certificate for the control-plane TLS listener (spec.md
// CLI section), written out as a PKCS#12 bundle since that's the format
// ctlplane.NewServer already loads (ctlplane/server.go, pkcs12.Decode).
func runGencert(args []string) int {
	path := "munin.pfx"
	if len(args) > 0 {
		path = args[0]
	}
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	priv, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gencert: generating key:", err)
		return exitRuntimeFault
	}

	cert, err := selfSignedCert(priv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gencert: building certificate:", err)
		return exitRuntimeFault
	}

	pfx, err := pkcs12.Encode(rand.Reader, priv, cert, nil, password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gencert: encoding pkcs12:", err)
		return exitRuntimeFault
	}

	if err := os.WriteFile(path, pfx, 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "gencert: writing", path, ":", err)
		return exitRuntimeFault
	}

	fmt.Println("wrote", path)
	return exitOK
}

func selfSignedCert(priv *rsa.PrivateKey) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	names := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		names = append(names, hostname)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: certCommonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     names,
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}
