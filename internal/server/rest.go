package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/auth"
	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/hub"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DispatchServer exposes the registry's two dispatch primitives to the
// portal's CRUD backend tier, guarded by an API key. Both endpoints are
// fire-and-forget: they accept the dispatch regardless of whether the target
// is currently connected.
type DispatchServer struct {
	logger        *zap.Logger
	authenticator *auth.Authenticator
	registry      hub.Registry
}

func NewDispatchServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	registry hub.Registry,
) *DispatchServer {
	return &DispatchServer{
		logger,
		authenticator,
		registry,
	}
}

type NotifyRequest struct {
	Identity string `json:"identity"`
	Data     any    `json:"data"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

type DispatchResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *DispatchServer) Register(router *mux.Router) {
	router.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(w, r) {
			return
		}

		var notifyRequest NotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&notifyRequest); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if notifyRequest.Identity == "" {
			http.Error(w, "identity is required", http.StatusBadRequest)
			return
		}

		s.registry.Notify(notifyRequest.Identity, notifyRequest.Data)

		s.writeResponse(w)
	}).Methods("POST")

	router.HandleFunc("/broadcast", func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(w, r) {
			return
		}

		var broadcastRequest BroadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&broadcastRequest); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		s.registry.Broadcast(broadcastRequest.Message)

		s.writeResponse(w)
	}).Methods("POST")
}

func (s *DispatchServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	apiKey := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	if _, err := s.authenticator.AuthenticateAPIKey(apiKey); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}

	return true
}

func (s *DispatchServer) writeResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(DispatchResponse{Accepted: true}); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
