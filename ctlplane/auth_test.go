package ctlplane

import (
	"net"
	"testing"
	"time"
)

func TestAuthHandshakeSuccess(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	const token = "T0PSECRET"
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServerAuth(server, token, time.Second, AuthSuccessBody{Version: "1.0"})
	}()

	body, err := RespondAuthChallenge(client, token)
	if err != nil {
		t.Fatalf("client auth: %v", err)
	}
	if body.Version != "1.0" {
		t.Fatalf("got version %q", body.Version)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server auth: %v", err)
	}
}

func TestAuthHandshakeWrongToken(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServerAuth(server, "T0PSECRET", time.Second, AuthSuccessBody{})
	}()

	if _, err := RespondAuthChallenge(client, "wrong-token"); err == nil {
		t.Fatal("expected client to see auth rejected")
	}
	if err := <-errCh; err != ErrAuthFailed {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestAllowListLiteralAndCIDR(t *testing.T) {
	t.Parallel()

	al := NewAllowList([]string{"10.0.0.1", "192.168.1.0/24"})
	if !al.Allowed("10.0.0.1:5000") {
		t.Fatal("expected literal match to pass")
	}
	if !al.Allowed("192.168.1.55:1234") {
		t.Fatal("expected CIDR match to pass")
	}
	if al.Allowed("8.8.8.8:80") {
		t.Fatal("expected non-matching address to be rejected")
	}
}

func TestAllowListEmptyMeansAny(t *testing.T) {
	t.Parallel()

	al := NewAllowList(nil)
	if !al.Allowed("8.8.8.8:80") {
		t.Fatal("expected empty allow-list to permit any address")
	}

	al = NewAllowList([]string{"*"})
	if !al.Allowed("1.2.3.4:80") {
		t.Fatal("expected * to permit any address")
	}
}

func TestAllowListGlob(t *testing.T) {
	t.Parallel()

	al := NewAllowList([]string{"10.0.0.*"})
	if !al.Allowed("10.0.0.42:1") {
		t.Fatal("expected glob match to pass")
	}
	if al.Allowed("10.0.1.42:1") {
		t.Fatal("expected glob mismatch to fail")
	}
}
