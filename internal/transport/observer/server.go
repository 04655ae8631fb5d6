package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/hooks"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/observerproto"
	"deepstore.ai/internal/storage/registry"
)

const subscriberQueue = 1024

type subscriber struct {
	id    string
	out   chan []byte
	areas atomic.Pointer[map[string]bool]
}

func (s *subscriber) wants(area string) bool {
	m := s.areas.Load()
	if m == nil || len(*m) == 0 {
		return true
	}
	return (*m)[area]
}

func (s *subscriber) setAreas(areas []string) {
	m := make(map[string]bool, len(areas))
	for _, a := range areas {
		if a = strings.TrimSpace(a); a != "" {
			m[a] = true
		}
	}
	s.areas.Store(&m)
}

// Server streams journal entries to loopback websocket clients. It is a
// ledger.Sink; WriteEntry never blocks and drops for slow clients.
type Server struct {
	log *slog.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
	boot observerproto.BootstrapResponse
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{
		log: logging.WithComponent(logger, "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		subs: map[string]*subscriber{},
		boot: observerproto.BootstrapResponse{ProtocolVersion: observerproto.Version},
	}
}

// Subscribers reports the number of connected clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped reports messages discarded for slow clients.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) WriteEntry(e ledger.Entry) error {
	b, err := json.Marshal(observerproto.LedgerMsg{
		Type:            observerproto.TypeLedger,
		ProtocolVersion: observerproto.Version,
		Entry:           e,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if !sub.wants(string(e.Area)) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Publish replaces the bootstrap snapshot. Call it from the host loop.
func (s *Server) Publish(b observerproto.BootstrapResponse) {
	b.ProtocolVersion = observerproto.Version
	s.mu.Lock()
	s.boot = b
	s.mu.Unlock()
}

// Snapshot builds a bootstrap response from the registry. It must run on
// the host loop since the registry is not goroutine-safe.
func Snapshot(reg *registry.Registry, bindings []hooks.Binding, seq uint64) observerproto.BootstrapResponse {
	out := observerproto.BootstrapResponse{ProtocolVersion: observerproto.Version, Seq: seq}
	for _, area := range reg.Areas() {
		as := observerproto.AreaState{ID: string(area)}
		for _, c := range reg.List(area) {
			p := c.Pos()
			cs := observerproto.ContainerState{
				ID:             c.ID(),
				Type:           c.Type(),
				Pos:            [3]int{p.X, p.Y, p.Z},
				Live:           c.Live(),
				AutoCollect:    c.AutoCollect(),
				IncludeInTrade: c.IncludeInTrade(),
			}
			for _, k := range c.Kinds() {
				cs.Stock = append(cs.Stock, observerproto.StockLine{Kind: k, Count: c.StoredThingCount(k)})
			}
			as.Containers = append(as.Containers, cs)
		}
		out.Areas = append(out.Areas, as)
	}
	sort.SliceStable(out.Areas, func(i, j int) bool { return out.Areas[i].ID < out.Areas[j].ID })
	for _, b := range bindings {
		out.Hooks = append(out.Hooks, observerproto.HookState{Event: string(b.Event), Enabled: b.Enabled})
	}
	return out
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := s.boot
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sc := &subscriber{
			id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
			out: make(chan []byte, subscriberQueue),
		}
		sc.setAreas(sub.Areas)
		s.mu.Lock()
		s.subs[sc.id] = sc
		s.mu.Unlock()
		s.log.Info("subscriber joined", "id", sc.id, "areas", sub.Areas)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sc.id)
			s.mu.Unlock()
			s.log.Info("subscriber left", "id", sc.id)
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sc.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				sc.setAreas(sub.Areas)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
