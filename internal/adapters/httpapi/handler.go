package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	httpinfra "health-assistant/internal/infra/http"
	"health-assistant/internal/usecase/chat"
	"health-assistant/internal/usecase/doctors"
	"health-assistant/internal/usecase/feedback"
)

const (
	codeInvalidRequest = "invalid_request"
	codeValidation     = "validation_error"
	codeRateLimited    = "rate_limited"
	codeUsageLimit     = "usage_limit"
	codeUpstream       = "upstream_error"
	codeInternal       = "internal_error"

	requestTimeout = 15 * time.Second
	maxBodyBytes   = 256 << 10
)

// Handler обслуживает HTTP API ассистента.
type Handler struct {
	streamer domain.ChatStreamer
	chat     *chat.Service
	doctors  *doctors.Service
	feedback *feedback.Service
	limiter  *httpinfra.IPRateLimiter
	log      zerolog.Logger

	upgrader  websocket.Upgrader
	pingEvery time.Duration
}

// NewHandler собирает обработчики. limiter может быть nil.
func NewHandler(streamer domain.ChatStreamer, chatSvc *chat.Service, doctorsSvc *doctors.Service, feedbackSvc *feedback.Service, limiter *httpinfra.IPRateLimiter, logger zerolog.Logger) *Handler {
	return &Handler{
		streamer: streamer,
		chat:     chatSvc,
		doctors:  doctorsSvc,
		feedback: feedbackSvc,
		limiter:  limiter,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(streaming chi.Router) {
			if h.limiter != nil {
				streaming.Use(h.limiter.Middleware)
			}
			streaming.Post("/chat", h.handleChat)
			streaming.Get("/chat/ws", h.handleChatWS)
		})

		api.Group(func(plain chi.Router) {
			plain.Use(middleware.Timeout(requestTimeout))
			plain.Get("/doctors", h.handleDoctors)
			plain.Get("/emergency", h.handleEmergency)
			plain.Post("/feedback", h.handleFeedback)
		})
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
