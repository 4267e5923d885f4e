package http

import (
	"net/http"

	"expensa/internal/assistant"
	"expensa/internal/auth"
)

type askRequest struct {
	Query string `json:"query"`
}

type greetingDTO struct {
	Greeting     string `json:"greeting"`
	ExpenseCount int    `json:"expense_count"`
	Enabled      bool   `json:"enabled"`
}

type askDTO struct {
	Reply      assistant.Message   `json:"reply"`
	Transcript []assistant.Message `json:"transcript"`
}

// handleAssistantGreeting opens the conversation. The greeting starts the
// transcript when the session has none yet.
func (s *Server) handleAssistantGreeting(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	expenses, err := s.expenses.List(r.Context(), sess, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	greeting := s.assistant.Greeting(len(expenses))
	if len(s.transcripts.Get(sess.Token)) == 0 {
		s.transcripts.Append(sess.Token, assistant.Message{Role: assistant.RoleAssistant, Text: greeting, At: s.now()})
	}

	NewJSONResponse().Body(greetingDTO{
		Greeting:     greeting,
		ExpenseCount: len(expenses),
		Enabled:      s.assistant.Enabled(),
	}).Write(w)
}

// handleAssistantAsk answers one question over all of the caller's
// expenses. Only answered exchanges enter the transcript.
func (s *Server) handleAssistantAsk(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), sess, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	asked := s.now()
	reply, err := s.assistant.Ask(r.Context(), sanitizeInput(req.Query), expenses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	answer := assistant.Message{Role: assistant.RoleAssistant, Text: reply, At: s.now()}
	s.transcripts.Append(sess.Token,
		assistant.Message{Role: assistant.RoleUser, Text: sanitizeInput(req.Query), At: asked},
		answer)

	NewJSONResponse().Body(askDTO{
		Reply:      answer,
		Transcript: s.transcripts.Get(sess.Token),
	}).Write(w)
}

func (s *Server) handleAssistantTranscript(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	NewJSONResponse().Body(map[string]any{"messages": s.transcripts.Get(sess.Token)}).Write(w)
}
