package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"notepad/internal/events"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:7417"

const (
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	maxMessageSize  = 64 << 10
	outboxSize      = 16
)

// Notification is an event pushed to connected hosts.
type Notification struct {
	Event   events.Name `json:"event"`
	ID      string      `json:"id"`
	Payload any         `json:"payload"`
}

// Server serves the host bridge.
type Server struct {
	bus      *events.Bus
	commands *Commands
	log      *log.Entry
	upgrader websocket.Upgrader
}

// NewServer creates a bridge server that pushes bus events and answers
// commands.
func NewServer(bus *events.Bus, commands *Commands, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Server{
		bus:      bus,
		commands: commands,
		log:      logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeWait,
			CheckOrigin:      localOrigin,
		},
	}
}

// Handler returns the HTTP routes: /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down. Open
// WebSocket connections are closed with the context.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("bridge listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)

	sub, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	outbox := make(chan Response, outboxSize)
	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return err
			}
			g.Go(func() error {
				resp := s.commands.Dispatch(ctx, req)
				select {
				case outbox <- resp:
				case <-ctx.Done():
				}
				return nil
			})
		}
	})

	g.Go(func() error {
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub:
				if !ok {
					return nil
				}
				if err := s.writeEvent(conn, ev); err != nil {
					return err
				}
			case resp := <-outbox:
				// Events emitted while the command ran go out before its response.
				if err := s.flush(conn, sub); err != nil {
					return err
				}
				if err := s.write(conn, resp); err != nil {
					return err
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return err
				}
			}
		}
	})

	// Unblock the reader once either side is done.
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return conn.Close()
	})

	if err := g.Wait(); err != nil && !isClosed(err) {
		s.log.WithError(err).Debug("bridge connection ended")
	}
}

// flush writes the events already queued on sub without waiting for more.
func (s *Server) flush(conn *websocket.Conn, sub <-chan events.Event) error {
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if err := s.writeEvent(conn, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev events.Event) error {
	return s.write(conn, Notification{Event: ev.Name, ID: ev.ID, Payload: ev.Payload})
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

// localOrigin accepts requests without an Origin header and browser
// requests from a loopback or same-host page.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
