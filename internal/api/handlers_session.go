package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// connectWalletRequest is the body of PUT /api/sessions/{id}/wallet
type connectWalletRequest struct {
	PublicKey string `json:"publicKey"`
}

// handleCreateSession handles POST /api/sessions - mount a new dashboard session
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Create()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

// handleConnectWallet handles PUT /api/sessions/{id}/wallet
func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req connectWalletRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.PublicKey == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "publicKey is required", nil)
		return
	}

	st, err := s.sessions.Connect(sessionID, req.PublicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handleDisconnectWallet handles DELETE /api/sessions/{id}/wallet
func (s *Server) handleDisconnectWallet(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Disconnect(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handleDeleteSession handles DELETE /api/sessions/{id} - tear the session down
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Teardown(mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetState handles GET /api/sessions/{id}/state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.State(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
