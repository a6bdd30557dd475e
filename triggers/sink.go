package triggers

// ActionSink is the facade a Trigger's action runs against. It never
// exposes a Connection or its mutable state directly (design notes,
// spec.md section 9: "cyclic references between components" ->
// single-owner, message-passing access); the supervisor wires a concrete
// implementation per server that forwards to the right
// ircconn.Connection by server id.
type ActionSink interface {
	// SendMessage/SendNotice/SendAction/SendRaw/Join/Part/Kick mirror the
	// ircconn.Connection verbs of the same name (spec.md section 4.1).
	SendMessage(server, target, text string)
	SendNotice(server, target, text string)
	SendAction(server, target, text string)
	SendRaw(server, line string)
	Join(server, channel, key string)
	Part(server, channel, reason string)
	Kick(server, channel, nick, reason string)

	// Ban derives a ban mask for hostmask per the protect package's rule
	// and sets it, used by the "ban" action.
	Ban(server, channel, hostmask, ttl string)

	// Print/Sound/Notify/Log surface to local UI-adjacent concerns the
	// core does not implement (spec.md section 1's out-of-scope list);
	// an implementation may no-op any of these.
	Print(text string)
	Sound(name string)
	Notify(title, text string)
	Log(level, text string)
}
