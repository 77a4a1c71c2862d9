// Package debugserver serves pprof and a JSON health snapshot for the daemon.
// It is off unless debug.addr is configured.
package debugserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"reviewbadge/pkg/logx"
)

// DefaultAddr is used when debug is enabled without an address.
const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Addr string
	// Token, when set, is required as "Authorization: Bearer <token>" or ?token=.
	Token string
}

// HealthFunc returns the value served at /healthz.
type HealthFunc func(ctx context.Context) any

type Server struct {
	cfg    Config
	log    logx.Logger
	health HealthFunc
}

func New(cfg Config, log logx.Logger, health HealthFunc) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, log: log, health: health}
}

// CheckAddr refuses a non-loopback bind without a token.
func CheckAddr(addr, token string) error {
	if token != "" || IsLoopback(addr) {
		return nil
	}
	return fmt.Errorf("debug.addr %q is not loopback; set debug.token", addr)
}

// IsLoopback reports whether addr binds to localhost only.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Handler routes /healthz and /debug/pprof/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.withAuth(s.serveHealth))
	mux.HandleFunc("/debug/pprof/", s.withAuth(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", s.withAuth(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", s.withAuth(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", s.withAuth(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", s.withAuth(hpprof.Trace))
	return mux
}

// Run serves until ctx is done and returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := CheckAddr(s.cfg.Addr, s.cfg.Token); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("debug listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	s.log.Info("debug server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
	)
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	var v any = map[string]string{"status": "ok"}
	if s.health != nil {
		v = s.health(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("healthz encode failed", logx.Err(err))
	}
}

func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}
