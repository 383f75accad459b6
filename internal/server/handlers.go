package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lox/stakebingo/internal/room"
)

// Handler returns the HTTP routes, including the websocket endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/rooms", s.handleListRooms)
	r.Get("/rooms/{stake}/snapshot", s.handleSnapshot)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/rooms/{stake}/reset", s.handleReset)
		r.Post("/rooms/{stake}/start", s.handleForceStart)
	})
	return r
}

type roomsResponse struct {
	Rooms []room.Summary `json:"rooms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomsResponse{Rooms: rooms})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	stake, ok := stakeParam(w, r)
	if !ok {
		return
	}
	snap, err := s.service.Snapshot(r.Context(), stake, "")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	stake, ok := stakeParam(w, r)
	if !ok {
		return
	}
	if err := s.service.Reset(r.Context(), stake); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForceStart(w http.ResponseWriter, r *http.Request) {
	stake, ok := stakeParam(w, r)
	if !ok {
		return
	}
	if err := s.service.ForceStart(r.Context(), stake); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin guards operator endpoints. With no secret configured they are
// disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminSecret == "" {
			writeJSON(w, http.StatusForbidden, ErrorData{Code: "ADMIN_DISABLED", Message: "admin endpoints are disabled"})
			return
		}
		got := r.Header.Get("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, ErrorData{Code: "UNAUTHORIZED", Message: "invalid admin secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func stakeParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	stake, err := strconv.ParseInt(chi.URLParam(r, "stake"), 10, 64)
	if err != nil || stake <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorData{Code: room.CodeOf(room.ErrInvalidStake), Message: "stake must be a positive integer"})
		return 0, false
	}
	return stake, true
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorData{Code: errorCode(err), Message: err.Error()})
}

func httpStatus(err error) int {
	if errors.Is(err, ErrRoomNotFound) {
		return http.StatusNotFound
	}
	switch room.KindOf(err) {
	case room.KindValidation:
		return http.StatusBadRequest
	case room.KindState, room.KindClaim:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, room.ErrInvalidStake):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrRoomClosed), errors.Is(err, room.ErrNotEnoughPlayers), errors.Is(err, room.ErrAlreadyStarted),
		errors.Is(err, room.ErrRoomFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
