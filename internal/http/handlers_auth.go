package http

import (
	"net/http"

	"expensa/internal/auth"
	"expensa/internal/log"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(sess).Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(sess).Write(w)
}

// handleSignOut ends the session and drops its assistant transcript.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.auth.SignOut(r.Context(), sess.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.transcripts.Clear(sess.Token)
	log.FromContext(r.Context()).DebugContext(r.Context(), "Transcript cleared", log.FieldOperation, log.OpSignOut)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
