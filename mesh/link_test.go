package mesh

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestComputeResponseDeterministic(t *testing.T) {
	challenge := []byte("fixed-challenge-bytes")
	a := computeResponse("sharedsecret", challenge)
	b := computeResponse("sharedsecret", challenge)
	if a != b {
		t.Fatal("expected computeResponse to be deterministic for the same inputs")
	}
	if c := computeResponse("othersecret", challenge); c == a {
		t.Fatal("expected a different password to produce a different response")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to compare equal")
	}
	if constantTimeEqual("abc", "abd") {
		t.Fatal("expected differing strings to compare unequal")
	}
	if constantTimeEqual("abc", "abcd") {
		t.Fatal("expected differing lengths to compare unequal")
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	allowed := map[string]string{"initiator": "topsecret"}

	type result struct {
		link *Link
		err  error
	}
	clientResult := make(chan result, 1)
	serverResult := make(chan result, 1)

	go func() {
		l, err := HandshakeInitiate(clientConn, "initiator", "1.0", "topsecret", nil)
		clientResult <- result{l, err}
	}()
	go func() {
		l, err := HandshakeRespond(serverConn, "responder", allowed, nil, []string{"x"})
		serverResult <- result{l, err}
	}()

	cr := <-clientResult
	sr := <-serverResult

	if cr.err != nil {
		t.Fatalf("client handshake failed: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server handshake failed: %v", sr.err)
	}
	if !cr.link.Authenticated || !sr.link.Authenticated {
		t.Fatal("expected both sides to end up authenticated")
	}
	if cr.link.PeerName != "responder" {
		t.Fatalf("expected client to learn peer name %q, got %q", "responder", cr.link.PeerName)
	}
	if sr.link.PeerName != "initiator" {
		t.Fatalf("expected server to learn peer name %q, got %q", "initiator", sr.link.PeerName)
	}
}

func TestHandshakeRejectsUnknownPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverErr := make(chan error, 1)
	go func() {
		_, err := HandshakeRespond(serverConn, "responder", map[string]string{}, nil, nil)
		serverErr <- err
	}()

	_, clientErr := HandshakeInitiate(clientConn, "stranger", "1.0", "whatever", nil)
	if clientErr == nil {
		t.Fatal("expected the client to see a handshake failure")
	}
	if err := <-serverErr; err == nil {
		t.Fatal("expected the server to reject an unlisted peer")
	}
}

func TestHandshakeRejectsWrongPassword(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	allowed := map[string]string{"initiator": "correct"}
	serverErr := make(chan error, 1)
	go func() {
		_, err := HandshakeRespond(serverConn, "responder", allowed, nil, nil)
		serverErr <- err
	}()

	_, clientErr := HandshakeInitiate(clientConn, "initiator", "1.0", "wrong", nil)
	if clientErr == nil {
		t.Fatal("expected the client to see an auth failure")
	}
	if err := <-serverErr; err == nil {
		t.Fatal("expected the server to reject a bad response")
	}
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	l := newLink(clientConn, nil)

	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestSendRejectsOversizedLine(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	l := newLink(clientConn, nil)
	huge := []byte(`"` + strings.Repeat("x", MaxLineBytes) + `"`)
	env := &Envelope{Type: TypeChat, Data: huge}

	errCh := make(chan error, 1)
	go func() { errCh <- l.send(env) }()

	select {
	case err := <-errCh:
		if err != ErrLineTooLong {
			t.Fatalf("expected ErrLineTooLong, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send to reject the oversized line")
	}
}
