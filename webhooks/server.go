package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/osmi-labs/cardlink/core"
)

// Server exposes the webhook and health endpoints over chi. Basic auth is
// optional-but-checked: unauthenticated requests pass through, requests
// presenting credentials must present the right ones.
type Server struct {
	addr      string
	username  string
	password  string
	processor *Processor
	logger    core.Logger
	now       func() time.Time

	httpServer *http.Server
}

type ServerConfig struct {
	Addr     string
	Username string
	Password string
}

func NewServer(cfg ServerConfig, processor *Processor, logger core.Logger) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("webhooks: processor is required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = ":5001"
	}
	return &Server{
		addr:      addr,
		username:  strings.TrimSpace(cfg.Username),
		password:  cfg.Password,
		processor: processor,
		logger:    logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.With(s.checkBasicAuth).Get("/webhook", s.handleWebhook)
	r.With(s.checkBasicAuth).Post("/webhook", s.handleWebhook)

	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("webhooks: server is not configured")
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if s.logger != nil {
		s.logger.Info("webhook server listening", "addr", s.addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	serial, event, err := extractParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	outcome := s.processor.Process(r.Context(), RequestMeta{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	}, serial, event)
	writeJSON(w, outcome.StatusCode, outcome.Body)
}

// extractParams reads serial and event from the query string on GET and
// from the urlencoded form on POST.
func extractParams(r *http.Request) (string, string, error) {
	var serial, event string
	switch r.Method {
	case http.MethodGet:
		serial = strings.TrimSpace(r.URL.Query().Get("serial"))
		event = strings.TrimSpace(r.URL.Query().Get("event"))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("webhooks: parse form: %w", err)
		}
		serial = strings.TrimSpace(r.PostFormValue("serial"))
		event = strings.TrimSpace(r.PostFormValue("event"))
	default:
		return "", "", fmt.Errorf("webhooks: unsupported method %s", r.Method)
	}
	if serial == "" || event == "" {
		return "", "", fmt.Errorf("webhooks: serial and event parameters are required")
	}
	return serial, event, nil
}

// checkBasicAuth rejects requests that present wrong credentials but lets
// anonymous requests through, mirroring the optional-auth contract of the
// card provider's webhook sender.
func (s *Server) checkBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if s.username == "" {
			next.ServeHTTP(w, r)
			return
		}
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
		if !userMatch || !passMatch {
			if s.logger != nil {
				s.logger.Error("webhook auth failed", "username", username)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="webhook"`)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
