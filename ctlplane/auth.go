package ctlplane

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ErrAuthTimeout/ErrAuthFailed classify why a session never reached
// MsgAuthSuccess.
var (
	ErrAuthTimeout = errors.New("ctlplane: auth response timed out")
	ErrAuthFailed  = errors.New("ctlplane: auth response did not match")
)

// AuthSuccessBody is the UTF-8 JSON payload of MsgAuthSuccess (spec.md
// section 4.6, step 4).
type AuthSuccessBody struct {
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Platform  string `json:"platform"`
	UptimeMs  int64  `json:"uptime_ms"`
}

// computeHMAC returns HMAC-SHA256(token, challenge).
func computeHMAC(token string, challenge []byte) []byte {
	h := hmac.New(sha256.New, []byte(token))
	h.Write(challenge)
	return h.Sum(nil)
}

// runServerAuth drives the server side of the handshake (spec.md section
// 4.6): send AuthChallenge, wait up to timeout for a matching
// AuthResponse, then send AuthSuccess or AuthFailure. rw is the raw
// framed connection (pre-sequencing; auth frames do not participate in
// the session sequence counter).
func runServerAuth(rw io.ReadWriter, token string, timeout time.Duration, info AuthSuccessBody) error {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return err
	}

	payload := make([]byte, 0, 40)
	payload = append(payload, nonce...)
	payload = append(payload, challenge...)
	if err := WriteFrame(rw, Frame{Type: MsgAuthChallenge, Payload: payload}); err != nil {
		return err
	}

	type result struct {
		f   Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := ReadFrame(rw)
		done <- result{f, err}
	}()

	var resp Frame
	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		resp = r.f
	case <-time.After(timeout):
		return ErrAuthTimeout
	}

	if resp.Type != MsgAuthResponse || len(resp.Payload) != 40 {
		sendAuthFailure(rw, "malformed auth response")
		return ErrAuthFailed
	}
	respNonce := resp.Payload[:8]
	respMAC := resp.Payload[8:]
	if subtle.ConstantTimeCompare(respNonce, nonce) != 1 {
		sendAuthFailure(rw, "nonce mismatch")
		return ErrAuthFailed
	}
	expected := computeHMAC(token, challenge)
	if subtle.ConstantTimeCompare(respMAC, expected) != 1 {
		sendAuthFailure(rw, "hmac mismatch")
		return ErrAuthFailed
	}

	body, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return WriteFrame(rw, Frame{Type: MsgAuthSuccess, Payload: body})
}

func sendAuthFailure(rw io.ReadWriter, reason string) {
	_ = WriteFrame(rw, Frame{Type: MsgAuthFailure, Payload: []byte(reason)})
}

// RespondAuthChallenge drives the client side: read AuthChallenge, reply
// with AuthResponse, then confirm AuthSuccess. Exported for a future
// control-plane client/CLI to reuse.
func RespondAuthChallenge(rw io.ReadWriter, token string) (AuthSuccessBody, error) {
	challengeFrame, err := ReadFrame(rw)
	if err != nil {
		return AuthSuccessBody{}, err
	}
	if challengeFrame.Type != MsgAuthChallenge || len(challengeFrame.Payload) != 40 {
		return AuthSuccessBody{}, errors.New("ctlplane: expected auth challenge")
	}
	nonce := challengeFrame.Payload[:8]
	challenge := challengeFrame.Payload[8:]
	mac := computeHMAC(token, challenge)

	resp := make([]byte, 0, 40)
	resp = append(resp, nonce...)
	resp = append(resp, mac...)
	if err := WriteFrame(rw, Frame{Type: MsgAuthResponse, Payload: resp}); err != nil {
		return AuthSuccessBody{}, err
	}

	result, err := ReadFrame(rw)
	if err != nil {
		return AuthSuccessBody{}, err
	}
	if result.Type == MsgAuthFailure {
		return AuthSuccessBody{}, errors.Errorf("ctlplane: auth rejected: %s", result.Payload)
	}
	if result.Type != MsgAuthSuccess {
		return AuthSuccessBody{}, errors.New("ctlplane: expected auth success")
	}
	var body AuthSuccessBody
	if err := json.Unmarshal(result.Payload, &body); err != nil {
		return AuthSuccessBody{}, err
	}
	return body, nil
}
