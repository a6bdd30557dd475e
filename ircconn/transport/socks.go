// Package transport implements the outer connection chain a Connection
// dials through before IRC line framing begins: an optional SOCKS4,
// SOCKS5 or HTTP CONNECT proxy handshake, then an optional TLS handshake
// (spec.md section 4.1.a). Each proxy handshake is implemented byte-exact
// against the relevant RFC rather than through a generic proxy dialer, so
// that boundary tests can assert on the exact bytes written and read.
package transport

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
)

// Socks4Connect performs a SOCKS4 CONNECT handshake over conn to
// host:port, returning once the proxy has confirmed the upstream
// connection is established. userID is sent as the SOCKS4 user ID field
// (often empty).
//
// Request:  VN(1)=4 CD(1)=1 DSTPORT(2) DSTIP(4) USERID(n) NUL(1)
// Response: VN(1)=0 CD(1) DSTPORT(2) DSTIP(4)
func Socks4Connect(conn net.Conn, host string, port uint16, userID string) error {
	ip, err := resolve4(host)
	if err != nil {
		return err
	}

	req := make([]byte, 0, 9+len(userID))
	req = append(req, 0x04, 0x01)
	req = append(req, byte(port>>8), byte(port))
	req = append(req, ip...)
	req = append(req, []byte(userID)...)
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("transport: socks4 write request: %w", err)
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("transport: socks4 read reply: %w", err)
	}
	if resp[0] != 0x00 {
		return fmt.Errorf("transport: socks4 malformed reply, VN=%d", resp[0])
	}
	if resp[1] != 0x5A {
		return fmt.Errorf("transport: socks4 request rejected, CD=%d", resp[1])
	}
	return nil
}

func resolve4(host string) ([]byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, errors.New("transport: socks4 requires an IPv4 address")
	}
	addrs, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, fmt.Errorf("transport: socks4 resolve %q: %w", host, err)
	}
	return addrs.IP.To4(), nil
}

const (
	socks5Version   = 0x05
	socks5AuthNone  = 0x00
	socks5AuthUserPass = 0x02
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect = 0x01
	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04
)

// Socks5Connect performs a SOCKS5 handshake (RFC 1928) plus, if username
// is non-empty, RFC 1929 username/password sub-negotiation, then a
// CONNECT request to host:port.
func Socks5Connect(conn net.Conn, host string, port uint16, username, password string) error {
	methods := []byte{socks5AuthNone}
	if username != "" {
		methods = []byte{socks5AuthUserPass}
	}

	greeting := make([]byte, 0, 2+len(methods))
	greeting = append(greeting, socks5Version, byte(len(methods)))
	greeting = append(greeting, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return fmt.Errorf("transport: socks5 write greeting: %w", err)
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("transport: socks5 read method selection: %w", err)
	}
	if reply[0] != socks5Version {
		return fmt.Errorf("transport: socks5 unexpected version %d", reply[0])
	}
	switch reply[1] {
	case socks5AuthNone:
		// proceed
	case socks5AuthUserPass:
		if err := socks5Authenticate(conn, username, password); err != nil {
			return err
		}
	case socks5AuthNoAccept:
		return errors.New("transport: socks5 proxy rejected all auth methods")
	default:
		return fmt.Errorf("transport: socks5 proxy selected unsupported method %d", reply[1])
	}

	req, err := socks5ConnectRequest(host, port)
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("transport: socks5 write request: %w", err)
	}

	return socks5ReadReply(conn)
}

func socks5Authenticate(conn net.Conn, username, password string) error {
	if len(username) > 255 || len(password) > 255 {
		return errors.New("transport: socks5 username/password must each be <= 255 bytes")
	}
	req := make([]byte, 0, 3+len(username)+len(password))
	req = append(req, 0x01, byte(len(username)))
	req = append(req, []byte(username)...)
	req = append(req, byte(len(password)))
	req = append(req, []byte(password)...)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("transport: socks5 write auth: %w", err)
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("transport: socks5 read auth reply: %w", err)
	}
	if reply[1] != 0x00 {
		return errors.New("transport: socks5 authentication failed")
	}
	return nil
}

func socks5ConnectRequest(host string, port uint16) ([]byte, error) {
	req := []byte{socks5Version, socks5CmdConnect, 0x00}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			req = append(req, socks5AtypIPv4)
			req = append(req, v4...)
		} else {
			req = append(req, socks5AtypIPv6)
			req = append(req, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, errors.New("transport: socks5 domain name must be <= 255 bytes")
		}
		req = append(req, socks5AtypDomain, byte(len(host)))
		req = append(req, []byte(host)...)
	}

	req = append(req, byte(port>>8), byte(port))
	return req, nil
}

func socks5ReadReply(conn net.Conn) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return fmt.Errorf("transport: socks5 read reply header: %w", err)
	}
	if header[0] != socks5Version {
		return fmt.Errorf("transport: socks5 unexpected reply version %d", header[0])
	}
	if header[1] != 0x00 {
		return fmt.Errorf("transport: socks5 proxy returned error code %d", header[1])
	}

	var addrLen int
	switch header[3] {
	case socks5AtypIPv4:
		addrLen = 4
	case socks5AtypIPv6:
		addrLen = 16
	case socks5AtypDomain:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return fmt.Errorf("transport: socks5 read domain length: %w", err)
		}
		addrLen = int(lenByte[0])
	default:
		return fmt.Errorf("transport: socks5 unknown ATYP %d", header[3])
	}

	rest := make([]byte, addrLen+2) // address + BND.PORT
	if _, err := io.ReadFull(conn, rest); err != nil {
		return fmt.Errorf("transport: socks5 read bound address: %w", err)
	}
	return nil
}

// HTTPConnect performs an HTTP CONNECT tunnel handshake (RFC 7231
// section 4.3.6) to host:port, optionally with a Proxy-Authorization
// Basic header when username is non-empty.
func HTTPConnect(conn net.Conn, host string, port uint16, username, password string) error {
	target := fmt.Sprintf("%s:%d", host, port)
	req := "CONNECT " + target + " HTTP/1.1\r\nHost: " + target + "\r\n"
	if username != "" {
		req += "Proxy-Authorization: Basic " + basicAuth(username, password) + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("transport: http-connect write request: %w", err)
	}

	reader := bufio.NewReader(conn)
	tp := textproto.NewReader(reader)
	statusLine, err := tp.ReadLine()
	if err != nil {
		return fmt.Errorf("transport: http-connect read status line: %w", err)
	}
	if _, err := tp.ReadMIMEHeader(); err != nil && err != io.EOF {
		return fmt.Errorf("transport: http-connect read headers: %w", err)
	}

	if len(statusLine) < 12 || statusLine[9] != '2' {
		return fmt.Errorf("transport: http-connect proxy refused tunnel: %q", statusLine)
	}
	return nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
