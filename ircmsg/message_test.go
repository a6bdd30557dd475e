package ircmsg

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		prefix  string
		command string
		params  []string
		wantErr bool
	}{
		{
			line:    ":nick!user@host.com PRIVMSG &channel1,#channel2 :message1 message2",
			prefix:  "nick!user@host.com",
			command: PRIVMSG,
			params:  []string{"&channel1,#channel2", "message1 message2"},
		},
		{
			line:    "PRIVMSG &channel1,#channel2 :message1 message2",
			command: PRIVMSG,
			params:  []string{"&channel1,#channel2", "message1 message2"},
		},
		{
			line:    ":irc PING :4005945",
			prefix:  "irc",
			command: PING,
			params:  []string{"4005945"},
		},
		{
			line:    "@time=2019-02-26T22:15:00.000Z;msgid=abc :nick!u@h PRIVMSG #c :hi",
			prefix:  "nick!u@h",
			command: PRIVMSG,
			params:  []string{"#c", "hi"},
		},
	}

	for _, test := range tests {
		msg, err := Parse(test.line)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got none", test.line)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", test.line, err)
		}
		if msg.Prefix != test.prefix {
			t.Errorf("%q: prefix = %q, want %q", test.line, msg.Prefix, test.prefix)
		}
		if msg.Command != test.command {
			t.Errorf("%q: command = %q, want %q", test.line, msg.Command, test.command)
		}
		if len(msg.Params) != len(test.params) {
			t.Fatalf("%q: params = %v, want %v", test.line, msg.Params, test.params)
		}
		for i := range test.params {
			if msg.Params[i] != test.params[i] {
				t.Errorf("%q: params[%d] = %q, want %q", test.line, i, msg.Params[i], test.params[i])
			}
		}
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	if _, err := Parse(""); err == nil {
		t.Error("expected error parsing empty line")
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	lines := []string{
		"PRIVMSG #chan :hello there",
		":nick!u@h JOIN #chan",
		"@msgid=1;account=nick :nick!u@h PRIVMSG #chan :hi",
	}
	for _, line := range lines {
		msg, err := Parse(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		again, err := Parse(msg.String())
		if err != nil {
			t.Fatalf("%q -> %q: %v", line, msg.String(), err)
		}
		if again.Command != msg.Command || len(again.Params) != len(msg.Params) {
			t.Errorf("%q: round trip mismatch: %+v vs %+v", line, msg, again)
		}
	}
}

func TestHostSplit(t *testing.T) {
	t.Parallel()
	nick, user, host := Host("nick!user@host.com").Split()
	if nick != "nick" || user != "user" || host != "host.com" {
		t.Errorf("split = %q %q %q", nick, user, host)
	}
}

func TestMaskMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mask  Mask
		host  Host
		match bool
	}{
		{"*!*@host.com", "nick!user@host.com", true},
		{"*!*@host.com", "nick!user@other.com", false},
		{"n?ck!*@*", "nick!user@host.com", true},
		{"NICK!*@*", "nick!user@host.com", true},
	}
	for _, test := range tests {
		if got := test.mask.Match(test.host); got != test.match {
			t.Errorf("%s.Match(%s) = %v, want %v", test.mask, test.host, got, test.match)
		}
	}
}

func TestDeriveBanMask(t *testing.T) {
	t.Parallel()
	full := "nick!user@host.com"
	tests := []struct {
		kind BanMaskKind
		want string
	}{
		{BanHostOnly, "*!*@host.com"},
		{BanNickOnly, "nick!*@*"},
		{BanUserOnly, "*!user@*"},
		{BanFull, "nick!user@host.com"},
	}
	for _, test := range tests {
		if got := DeriveBanMask(full, test.kind); got != test.want {
			t.Errorf("DeriveBanMask(%d) = %q, want %q", test.kind, got, test.want)
		}
	}
}
