// Package httpapi is the admin station's HTTP surface: reader state, its
// websocket stream and the privileged card operations.
package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gregLibert/kiosk-card/internal/crash"
	"github.com/gregLibert/kiosk-card/pkg/admin"
	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/auth"
	"github.com/gregLibert/kiosk-card/pkg/card"
)

// Admin is the part of admin.Manager exposed over HTTP.
type Admin interface {
	State() admin.ReaderState
	Subscribe(ctx context.Context) <-chan admin.ReaderState
	InitializeCard(ctx context.Context, in admin.CardInit) error
	ResetTry(ctx context.Context) error
	ResetPin(ctx context.Context) error
	PublicKeyModulus(ctx context.Context) ([]byte, error)
}

// Handler serves the /v1 endpoints.
type Handler struct {
	admin  Admin
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a handler. A nil logger discards.
func New(a Admin, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{admin: a, logger: logger, now: time.Now}
}

// Register mounts the admin endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/reader", h.HandleReader)
		r.Get("/reader/ws", h.HandleReaderStream)
		r.Post("/card/init", h.HandleInit)
		r.Post("/card/reset-tries", h.HandleResetTries)
		r.Post("/card/reset-pin", h.HandleResetPin)
		r.Get("/card/public-key", h.HandlePublicKey)
	})
}

// NewRouter builds the admin route tree: ops endpoints plus the handler's.
func NewRouter(h *Handler, g prometheus.Gatherer) http.Handler {
	r := NewOpsRouter(h.logger, g)
	h.Register(r)
	return r
}

// NewOpsRouter serves /healthz and, when g is set, /metrics.
func NewOpsRouter(log *slog.Logger, g prometheus.Gatherer) chi.Router {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(recovery(log))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r
}

type readerResponse struct {
	State admin.ReaderState `json:"state"`
}

// HandleReader handles GET /v1/reader.
func (h *Handler) HandleReader(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, readerResponse{State: h.admin.State()})
}

type initRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Level    string `json:"level"`
	PIN      string `json:"pin"`
}

type initResponse struct {
	ID string `json:"id"`
}

// HandleInit handles POST /v1/card/init. An empty id is generated from the
// current time.
func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	level, err := card.ParseLevel(req.Level)
	if err != nil {
		h.fail(w, r, "init", err)
		return
	}
	if req.ID == "" {
		req.ID = admin.GenerateMemberID(h.now())
	}

	err = h.admin.InitializeCard(r.Context(), admin.CardInit{
		ID:       req.ID,
		Username: req.Username,
		FullName: req.FullName,
		Level:    level,
		PIN:      req.PIN,
	})
	if err != nil {
		h.fail(w, r, "init", err)
		return
	}
	h.logger.InfoContext(r.Context(), "card issued", "member", req.ID, "level", level)
	writeJSON(w, http.StatusCreated, initResponse{ID: req.ID})
}

// HandleResetTries handles POST /v1/card/reset-tries.
func (h *Handler) HandleResetTries(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResetTry(r.Context()); err != nil {
		h.fail(w, r, "reset-tries", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPin handles POST /v1/card/reset-pin.
func (h *Handler) HandleResetPin(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResetPin(r.Context()); err != nil {
		h.fail(w, r, "reset-pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type publicKeyResponse struct {
	Modulus string `json:"modulus"`
	PEM     string `json:"pem"`
}

// HandlePublicKey handles GET /v1/card/public-key.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	mod, err := h.admin.PublicKeyModulus(r.Context())
	if err != nil {
		h.fail(w, r, "public-key", err)
		return
	}
	pemText, err := auth.ModulusToPEM(mod)
	if err != nil {
		h.fail(w, r, "public-key", err)
		return
	}
	writeJSON(w, http.StatusOK, publicKeyResponse{Modulus: hex.EncodeToString(mod), PEM: pemText})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "admin request failed", "op", op, "error", err)
		if status == http.StatusInternalServerError {
			crash.CaptureError(err, "httpapi."+op, nil)
		}
	} else {
		h.logger.WarnContext(r.Context(), "admin request rejected", "op", op, "error", err)
	}
	writeError(w, status, code, err.Error())
}

// classify maps domain errors to a status and a stable error code.
func classify(err error) (int, string) {
	var ws *applet.WrongSecretError
	var pe *applet.ProtocolError
	switch {
	case errors.Is(err, admin.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, applet.ErrInvalidPIN), errors.Is(err, applet.ErrFormat), errors.Is(err, applet.ErrDataTooLong):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &ws):
		return http.StatusForbidden, "wrong_pin"
	case errors.Is(err, applet.ErrLocked):
		return http.StatusLocked, "card_locked"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "card_error"
	case errors.Is(err, applet.ErrConnection):
		return http.StatusServiceUnavailable, "reader_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, errorResponse{Error: code, Description: desc})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func recovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := debug.Stack()
				crash.CapturePanic(rec, stack, "http "+r.URL.Path)
				log.ErrorContext(r.Context(), "panic serving request", "path", r.URL.Path, "value", fmt.Sprint(rec))
				writeError(w, http.StatusInternalServerError, "internal", "")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
