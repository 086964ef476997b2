package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatdesk/internal/constants"
	"chatdesk/internal/errors"
	"chatdesk/internal/middleware"
	"chatdesk/internal/models"
	"chatdesk/internal/service"
	"chatdesk/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SessionRegistry is the session surface the HTTP layer needs.
type SessionRegistry interface {
	Open(ctx context.Context, conversationID string) (*service.ConversationSession, error)
	Get(conversationID string) (*service.ConversationSession, bool)
	Close(conversationID string) error
	CloseAll()
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	sessions SessionRegistry
	unread   service.UnreadCounter
	server   *http.Server
	port     int
}

func NewServer(cfg *models.Config, sessions SessionRegistry, unread service.UnreadCounter, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		sessions: sessions,
		unread:   unread,
		port:     cfg.Server.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	conversations := s.router.PathPrefix("/conversations/{id}").Subrouter()
	conversations.HandleFunc("/open", s.handleOpen()).Methods(http.MethodPost)
	conversations.HandleFunc("/close", s.handleClose()).Methods(http.MethodPost)
	conversations.HandleFunc("/timeline", s.handleTimeline()).Methods(http.MethodGet)
	conversations.HandleFunc("/messages", s.handleSend()).Methods(http.MethodPost)
	conversations.HandleFunc("/history", s.handleHistory()).Methods(http.MethodPost)
	conversations.HandleFunc("/read", s.handleMarkRead()).Methods(http.MethodPost)
	conversations.HandleFunc("/reload", s.handleReload()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleOpen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]

		session, err := s.sessions.Open(r.Context(), conversationID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, session.View())
	}
}

func (s *Server) handleClose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]

		if err := s.sessions.Close(conversationID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleTimeline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.openSession(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, session.View())
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.openSession(w, r)
		if !ok {
			return
		}

		var payload models.SendPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "", "invalid JSON payload"))
			return
		}

		confirmed, err := session.Send(r.Context(), payload)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, confirmed)
	}
}

type historyResponse struct {
	Added          int  `json:"added"`
	HasMoreHistory bool `json:"hasMoreHistory"`
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.openSession(w, r)
		if !ok {
			return
		}

		added, err := session.LoadOlderPage(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, historyResponse{
			Added:          added,
			HasMoreHistory: session.View().HasMoreHistory,
		})
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.openSession(w, r)
		if !ok {
			return
		}

		if err := session.MarkRead(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.openSession(w, r)
		if !ok {
			return
		}

		if err := session.Reload(r.Context(), s.unread); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, session.View())
	}
}

// openSession resolves the live session for the request's conversation ID,
// writing a 404 when none is open.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*service.ConversationSession, bool) {
	conversationID := mux.Vars(r)["id"]

	session, ok := s.sessions.Get(conversationID)
	if !ok {
		s.writeError(w, r, errors.NewNotFoundError("session", conversationID))
		return nil, false
	}
	return session, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestInfo := tracing.GetRequestInfo(r.Context())
	status := errors.HTTPStatusCode(err)

	s.logger.WithFields(logrus.Fields{
		service.LogFieldRequestID:  requestInfo.RequestID,
		service.LogFieldTraceID:    requestInfo.TraceID,
		service.LogFieldURL:        r.URL.Path,
		service.LogFieldStatusCode: status,
	}).WithError(err).Warn("Request failed")

	s.writeJSON(w, status, errors.ToHTTPResponse(err, requestInfo.RequestID))
}
