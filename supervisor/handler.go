package supervisor

import (
	"os"
	"time"

	"github.com/munin-agent/munin/ctlplane"
)

// ctlHandler implements ctlplane.Handler against a Supervisor. Like
// meshAdapter, it is a separate type rather than methods directly on
// *Supervisor because ctlplane.Handler's SendMessage/SendRaw return an
// error while triggers.ActionSink's methods of the same name do not --
// two incompatible signatures can't share one method name on the same
// receiver.
type ctlHandler struct{ *Supervisor }

// Status implements ctlplane.Handler.
func (h ctlHandler) Status() ctlplane.StatusBody {
	hostname, _ := os.Hostname()
	h.mu.RLock()
	servers := len(h.conns)
	started := h.startedAt
	h.mu.RUnlock()

	return ctlplane.StatusBody{
		Version:   version,
		Hostname:  hostname,
		UptimeMs:  time.Since(started).Milliseconds(),
		Servers:   servers,
		MeshLinks: len(h.meshSvc.Links()),
	}
}

// Connections implements ctlplane.Handler.
func (h ctlHandler) Connections() ctlplane.ConnectionsBody {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ctlplane.ConnectionInfo, 0, len(h.conns))
	for id, c := range h.conns {
		out = append(out, ctlplane.ConnectionInfo{
			ServerID: id,
			State:    c.State().String(),
		})
	}
	return ctlplane.ConnectionsBody{Connections: out}
}

// Channels implements ctlplane.Handler.
func (h ctlHandler) Channels(serverID string) ctlplane.ChannelsBody {
	return ctlplane.ChannelsBody{ServerID: serverID}
}

// Users implements ctlplane.Handler.
func (h ctlHandler) Users() ctlplane.UsersBody {
	users := h.users.All()
	handles := make([]string, len(users))
	for i, u := range users {
		handles[i] = u.Handle
	}
	return ctlplane.UsersBody{Handles: handles}
}

// JoinChannel implements ctlplane.Handler.
func (h ctlHandler) JoinChannel(serverID, channel, key string) error {
	h.Join(serverID, channel, key)
	return nil
}

// PartChannel implements ctlplane.Handler.
func (h ctlHandler) PartChannel(serverID, channel, reason string) error {
	h.Part(serverID, channel, reason)
	return nil
}

// SendMessage implements ctlplane.Handler by delegating to the
// Supervisor's ActionSink method and discarding its (always nil) error.
func (h ctlHandler) SendMessage(serverID, target, text string) error {
	h.Supervisor.SendMessage(serverID, target, text)
	return nil
}

// SendRaw implements ctlplane.Handler.
func (h ctlHandler) SendRaw(serverID, line string) error {
	h.Supervisor.SendRaw(serverID, line)
	return nil
}

// Connect implements ctlplane.Handler: (re)starts a configured server's
// connection task if it isn't already running.
func (h ctlHandler) Connect(serverID string) error {
	if h.connection(serverID) != nil {
		return nil
	}
	for i := range h.cfg.Servers {
		if h.cfg.Servers[i].ID == serverID {
			h.startConnection(&h.cfg.Servers[i])
			return nil
		}
	}
	return errUnknownServer(serverID)
}

// Disconnect implements ctlplane.Handler: closes the named server's
// connection. Whether it is then restarted is governed by that server's
// own AutoReconnect setting, same as any other disconnection (spec.md
// section 4.1).
func (h ctlHandler) Disconnect(serverID string) error {
	c := h.connection(serverID)
	if c == nil {
		return errUnknownServer(serverID)
	}
	c.Close()
	return nil
}

// Shutdown implements ctlplane.Handler: stops the whole agent.
func (h ctlHandler) Shutdown() error {
	go h.Stop()
	return nil
}

type errUnknownServer string

func (e errUnknownServer) Error() string { return "supervisor: unknown server id " + string(e) }
