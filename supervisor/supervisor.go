// Package supervisor wires every other package into a running agent:
// config and keystore first, then the access database, one ircconn
// Connection per configured server, the event bus, the trigger engine,
// channel protection, the control-plane server and the mesh service
// (spec.md section 1's dependency order, section 9's design notes on
// avoiding cyclic component references).
//
// It is grounded on the teacher's bot.Bot (bot/bot.go): a serverControl
// channel-op idiom coordinating start/stop across goroutines, one
// goroutine per connection, and a single fan-in completion channel the
// process main loop waits on. The teacher's single in-process dispatcher
// is replaced by this repository's event bus plus trigger engine, and a
// connection's own Run already owns IRC-level reconnect/backoff (spec.md
// section 4.1); supervisor only restarts a connection goroutine that
// returned due to a genuine fault, with the same one-for-one
// exponential-backoff policy applied at the task level (spec.md section
// 7: "every task catches non-cancellation panics/faults and logs them
// before restarting").
package supervisor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/munin-agent/munin/access"
	"github.com/munin-agent/munin/config"
	"github.com/munin-agent/munin/ctlplane"
	"github.com/munin-agent/munin/events"
	"github.com/munin-agent/munin/ircconn"
	"github.com/munin-agent/munin/keystore"
	"github.com/munin-agent/munin/mesh"
	"github.com/munin-agent/munin/metrics"
	"github.com/munin-agent/munin/protect"
	"github.com/munin-agent/munin/triggers"
)

// version is surfaced in control-plane AuthSuccess/Status replies and
// the mesh Hello this agent sends when it initiates a link.
const version = "1.0.0"

// Supervisor owns every long-lived subsystem and the goroutines driving
// them. The zero value is not usable; construct with New.
type Supervisor struct {
	cfg *config.AgentConfig
	ks  *keystore.Keystore
	log log15.Logger

	users    *access.DB
	bus      *events.Bus
	triggers *triggers.Engine
	protect  *protect.Engine
	meshSvc  *mesh.Service
	ctl      *ctlplane.Server
	metrics  *metrics.Server

	mu        sync.RWMutex
	conns     map[string]*ircconn.Connection
	startedAt time.Time

	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New constructs a Supervisor from a loaded configuration and an
// unlocked keystore. It does not start anything; call Run for that.
func New(cfg *config.AgentConfig, ks *keystore.Keystore, log log15.Logger) (*Supervisor, error) {
	if log == nil {
		log = log15.New("agent", cfg.Name)
	}

	users, err := loadOrCreateUserDB(cfg.EffectiveAccessDBPath(), ks, log)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:   cfg,
		ks:    ks,
		log:   log,
		users: users,
		bus:   events.New(log.New("pkg", "events")),
		conns: make(map[string]*ircconn.Connection),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	s.triggers = triggers.NewEngine(s, users, localMeName(cfg), log.New("pkg", "triggers"))
	if rules, err := triggers.LoadDir(cfg.EffectiveTriggersDir()); err == nil {
		s.triggers.Reload(rules)
	} else {
		log.Warn("supervisor: loading trigger rules", "dir", cfg.EffectiveTriggersDir(), "err", err)
	}

	s.protect = protect.NewEngine(defaultProtectRules(), protect.MaskHostOnly, log.New("pkg", "protect"))

	s.meshSvc = mesh.NewService(cfg.Name, users, meshAdapter{s}, meshAdapter{s}, log.New("pkg", "mesh"))
	users.OnChange(func(u *access.User) {
		s.meshSvc.BroadcastUserSync(users.ExportSync(cfg.Name), false)
	})

	if cfg.MetricsBindAddress != "" {
		if srv, err := metrics.NewServer(cfg.MetricsBindAddress); err != nil {
			log.Warn("supervisor: metrics server disabled", "err", err)
		} else {
			s.metrics = srv
		}
	}

	if cfg.ControlServer.Enabled {
		ctlSrv, err := s.buildControlServer()
		if err != nil {
			return nil, err
		}
		s.ctl = ctlSrv
	}

	return s, nil
}

func localMeName(cfg *config.AgentConfig) string {
	if len(cfg.Servers) == 0 {
		return ""
	}
	return cfg.Servers[0].Nick
}

func loadOrCreateUserDB(path string, ks *keystore.Keystore, log log15.Logger) (*access.DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info("supervisor: no existing access database, starting empty", "path", path)
		return access.New(), nil
	}
	return access.Load(path, ks)
}

func (s *Supervisor) buildControlServer() (*ctlplane.Server, error) {
	token, err := s.cfg.ControlServer.AuthToken.Reveal(s.ks)
	if err != nil {
		return nil, err
	}
	certPassword, err := s.cfg.ControlServer.CertificatePassword.Reveal(s.ks)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	return ctlplane.NewServer(ctlplane.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.ControlServer.BindAddress, s.cfg.ControlServer.Port),
		AuthToken:       token,
		AuthTimeout:     time.Duration(s.cfg.ControlServer.EffectiveAuthTimeout()) * time.Second,
		AllowedClients:  s.cfg.ControlServer.AllowedIPs,
		CertPFXPath:     s.cfg.ControlServer.CertificatePath,
		CertPFXPassword: certPassword,
		Info: ctlplane.AuthSuccessBody{
			Version:  version,
			Hostname: hostname,
			Platform: "munin",
		},
	}, ctlHandler{s}, s.log.New("pkg", "ctlplane"))
}

// Run starts every configured server connection, the mesh listener (if
// enabled), the control-plane server (if enabled) and the metrics
// server (if configured), then blocks until Stop is called.
func (s *Supervisor) Run() error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	for i := range s.cfg.Servers {
		sc := &s.cfg.Servers[i]
		if !sc.AutoConnect {
			continue
		}
		s.startConnection(sc)
	}

	if s.cfg.Botnet.Enabled {
		if err := s.meshSvc.Listen(fmt.Sprintf(":%d", s.cfg.Botnet.ListenPort)); err != nil {
			s.log.Error("supervisor: mesh listen failed", "err", err)
		}
		for _, lb := range s.cfg.Botnet.LinkedBots {
			if !lb.Initiate {
				continue
			}
			pass, err := lb.SharedPassword.Reveal(s.ks)
			if err != nil {
				s.log.Warn("supervisor: cannot reveal mesh peer password", "peer", lb.Name, "err", err)
				continue
			}
			s.meshSvc.AllowPeer(lb.Name, pass)
			addr := fmt.Sprintf("%s:%d", lb.Host, lb.Port)
			s.wg.Add(1)
			go func(name, addr, pass string) {
				defer s.wg.Done()
				s.meshSvc.Connect(name, addr, pass, version)
			}(lb.Name, addr, pass)
		}
		for _, lb := range s.cfg.Botnet.LinkedBots {
			if lb.Initiate {
				continue
			}
			pass, err := lb.SharedPassword.Reveal(s.ks)
			if err != nil {
				continue
			}
			s.meshSvc.AllowPeer(lb.Name, pass)
		}
	}

	if s.ctl != nil {
		if err := s.ctl.Listen(fmt.Sprintf("%s:%d", s.cfg.ControlServer.BindAddress, s.cfg.ControlServer.Port)); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.metrics.ListenAndServe(); err != nil {
				s.log.Warn("supervisor: metrics server stopped", "err", err)
			}
		}()
	}

	<-s.stop
	return nil
}

// startConnection launches one server's connection goroutine along with
// its event-bus pump and restarts it, with exponential backoff, if it
// ever exits before Stop is called.
func (s *Supervisor) startConnection(sc *config.ServerConfig) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		delay := time.Second
		for {
			select {
			case <-s.stop:
				return
			default:
			}

			conn, err := s.buildConnection(sc)
			if err != nil {
				s.log.Error("supervisor: failed to build connection", "server", sc.ID, "err", err)
				return
			}

			s.mu.Lock()
			s.conns[sc.ID] = conn
			s.mu.Unlock()

			pumpStop := make(chan struct{})
			go func() {
				for {
					select {
					case ev, ok := <-conn.Events():
						if !ok {
							close(pumpStop)
							return
						}
						s.handleEvent(sc.ID, ev)
					case <-pumpStop:
						return
					}
				}
			}()

			conn.Run(s.stop)

			s.mu.Lock()
			delete(s.conns, sc.ID)
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			default:
			}

			s.log.Warn("supervisor: connection task exited, restarting", "server", sc.ID, "delay", delay)
			select {
			case <-time.After(delay):
			case <-s.stop:
				return
			}
			delay *= 2
			if delay > 300*time.Second {
				delay = 300 * time.Second
			}
		}
	}()
}

func (s *Supervisor) buildConnection(sc *config.ServerConfig) (*ircconn.Connection, error) {
	opts := ircconn.Options{Log: s.log.New("server", sc.ID)}

	if pwd, err := sc.ServerPass.Reveal(s.ks); err != nil {
		return nil, err
	} else {
		opts.ServerPassword = pwd
	}
	if pwd, err := sc.NickServPwd.Reveal(s.ks); err != nil {
		return nil, err
	} else {
		opts.NickServPass = pwd
	}
	if u, err := sc.SASLUser.Reveal(s.ks); err != nil {
		return nil, err
	} else {
		opts.SASLUser = u
	}
	if pwd, err := sc.SASLPass.Reveal(s.ks); err != nil {
		return nil, err
	} else {
		opts.SASLPassword = pwd
	}

	return ircconn.New(sc, opts), nil
}

// handleEvent fans one ircconn.Event out to the bus, the trigger engine,
// and the protection engine, then pushes an IrcMessage broadcast (for an
// inbound raw line) or a ConnectionStateChanged broadcast (for a
// connect/disconnect/reconnect event) to control-plane sessions.
func (s *Supervisor) handleEvent(serverID string, ev ircconn.Event) {
	s.bus.Publish(ev)

	if in, ok := triggers.FromConnEvent(ev); ok {
		s.triggers.Evaluate(in)
	}

	s.observeProtect(serverID, ev)

	isStateChange := ev.Kind == ircconn.EventConnected || ev.Kind == ircconn.EventDisconnected || ev.Kind == ircconn.EventReconnecting
	if isStateChange {
		metrics.IRCConnections.WithLabelValues(serverID).Set(stateMetricValue(ev))
	}

	if s.ctl != nil {
		if isStateChange {
			s.ctl.Broadcast(ctlplane.MsgConnectionStateChanged, ctlplane.ConnectionStateBody{
				ServerID: serverID,
				State:    fmt.Sprint(ev.Kind),
			})
		} else if ev.Kind == ircconn.EventRawMessageReceived && ev.Raw != nil && !ev.Raw.Outbound {
			s.ctl.Broadcast(ctlplane.MsgIrcMessage, ctlplane.IRCMessageBody{ServerID: serverID, Line: ev.Raw.Line})
		}
	}
}

func stateMetricValue(ev ircconn.Event) float64 {
	if ev.Kind == ircconn.EventConnected {
		return 1
	}
	return 0
}

func (s *Supervisor) observeProtect(serverID string, ev ircconn.Event) {
	var kind protect.Kind
	switch ev.Kind {
	case ircconn.EventChannelMessage:
		kind = protect.KindMessage
	case ircconn.EventJoined:
		kind = protect.KindJoin
	case ircconn.EventParted:
		kind = protect.KindPart
	case ircconn.EventNickChanged:
		kind = protect.KindNick
	default:
		return
	}

	hostmask := ev.Nick
	if ev.User != "" && ev.Host != "" {
		hostmask = fmt.Sprintf("%s!%s@%s", ev.Nick, ev.User, ev.Host)
	}

	reactions := s.protect.Observe(ev.Channel, ev.Nick, hostmask, kind, ev.Text, ev.Time)
	for _, r := range reactions {
		s.applyReaction(serverID, r)
	}
}

func (s *Supervisor) applyReaction(serverID string, r protect.Reaction) {
	conn := s.connection(serverID)
	if conn == nil {
		return
	}
	switch r.Action {
	case protect.ActionWarn:
		conn.SendMessage(r.Channel, fmt.Sprintf("%s: warning, rule %q triggered", r.Nick, r.Rule.Name))
	case protect.ActionKick:
		conn.Kick(r.Channel, r.Nick, "rule "+r.Rule.Name)
	case protect.ActionKickBan:
		conn.SetMode(r.Channel, "+b", r.BanMask)
		conn.Kick(r.Channel, r.Nick, "rule "+r.Rule.Name)
	}
}

// connection returns the live Connection for serverID, or nil.
func (s *Supervisor) connection(serverID string) *ircconn.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[serverID]
}

// Stop signals every goroutine to wind down and waits for them.
func (s *Supervisor) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	if s.meshSvc != nil {
		s.meshSvc.Close()
	}
	if s.ctl != nil {
		s.ctl.Close()
	}
	if s.users != nil {
		if err := s.users.Save(s.cfg.EffectiveAccessDBPath(), s.ks); err != nil {
			s.log.Warn("supervisor: failed to save access database on shutdown", "err", err)
		}
	}
}

