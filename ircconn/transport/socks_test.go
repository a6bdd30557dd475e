package transport

import (
	"io"
	"net"
	"strings"
	"testing"
)

func TestSocks4Connect(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- Socks4Connect(client, "127.0.0.1", 6667, "agent") }()

	req := make([]byte, 9+len("agent"))
	if _, err := io.ReadFull(server, req); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if req[0] != 0x04 || req[1] != 0x01 {
		t.Fatalf("unexpected request header % x", req[:2])
	}
	if req[2] != 0x1A || req[3] != 0x0B { // 6667 = 0x1A0B
		t.Fatalf("unexpected port bytes % x", req[2:4])
	}
	if string(req[4:8]) != "\x7f\x00\x00\x01" {
		t.Fatalf("unexpected ip bytes % x", req[4:8])
	}

	if _, err := server.Write([]byte{0x00, 0x5A, 0x00, 0x00, 0, 0, 0, 0}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	if err := <-errc; err != nil {
		t.Fatalf("Socks4Connect: %v", err)
	}
}

func TestSocks4ConnectRejected(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- Socks4Connect(client, "127.0.0.1", 6667, "") }()

	req := make([]byte, 9)
	io.ReadFull(server, req)
	server.Write([]byte{0x00, 0x5B, 0x00, 0x00, 0, 0, 0, 0})

	if err := <-errc; err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestSocks5ConnectNoAuth(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- Socks5Connect(client, "irc.example.org", 6697, "", "") }()

	greeting := make([]byte, 3)
	io.ReadFull(server, greeting)
	if greeting[0] != 0x05 || greeting[1] != 0x01 || greeting[2] != 0x00 {
		t.Fatalf("unexpected greeting % x", greeting)
	}
	server.Write([]byte{0x05, 0x00})

	header := make([]byte, 5)
	io.ReadFull(server, header)
	if header[0] != 0x05 || header[1] != 0x01 || header[3] != 0x03 {
		t.Fatalf("unexpected request header % x", header)
	}
	domainLen := int(header[4])
	domain := make([]byte, domainLen+2)
	io.ReadFull(server, domain)
	if string(domain[:domainLen]) != "irc.example.org" {
		t.Fatalf("unexpected domain %q", domain[:domainLen])
	}

	server.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	if err := <-errc; err != nil {
		t.Fatalf("Socks5Connect: %v", err)
	}
}

func TestSocks5ConnectWithAuth(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- Socks5Connect(client, "1.2.3.4", 6667, "bot", "hunter2") }()

	greeting := make([]byte, 3)
	io.ReadFull(server, greeting)
	if greeting[2] != 0x02 {
		t.Fatalf("expected userpass method request, got % x", greeting)
	}
	server.Write([]byte{0x05, 0x02})

	authHeader := make([]byte, 2)
	io.ReadFull(server, authHeader)
	user := make([]byte, authHeader[1])
	io.ReadFull(server, user)
	passLen := make([]byte, 1)
	io.ReadFull(server, passLen)
	pass := make([]byte, passLen[0])
	io.ReadFull(server, pass)
	if string(user) != "bot" || string(pass) != "hunter2" {
		t.Fatalf("unexpected credentials %q/%q", user, pass)
	}
	server.Write([]byte{0x01, 0x00})

	header := make([]byte, 10)
	io.ReadFull(server, header)
	server.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	if err := <-errc; err != nil {
		t.Fatalf("Socks5Connect: %v", err)
	}
}

func TestHTTPConnect(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- HTTPConnect(client, "irc.example.org", 6697, "", "") }()

	buf := make([]byte, 4096)
	n, _ := server.Read(buf)
	req := string(buf[:n])
	if !strings.Contains(req, "CONNECT irc.example.org:6697 HTTP/1.1") {
		t.Fatalf("unexpected request: %q", req)
	}
	server.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	if err := <-errc; err != nil {
		t.Fatalf("HTTPConnect: %v", err)
	}
}

func TestHTTPConnectRefused(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- HTTPConnect(client, "irc.example.org", 6697, "", "") }()

	buf := make([]byte, 4096)
	server.Read(buf)
	server.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\n\r\n"))

	if err := <-errc; err == nil {
		t.Fatal("expected refusal error")
	}
}
