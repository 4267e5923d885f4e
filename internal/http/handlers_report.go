package http

import (
	"net/http"

	"expensa/internal/auth"
	"expensa/internal/log"
)

// handleMonthReport serves the reports screen for one month, the current
// one when month is omitted.
func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	params, err := ParseMonthParams(r.URL.Query(), s.location, s.now(), true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.reports.Month(r.Context(), sess, params.Month, params.Year, params.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	fields := log.NewFields().WithMonth(params.Month, params.Year)
	fields[log.FieldCount] = len(report.Rows)
	log.FromContext(r.Context()).DebugContext(r.Context(), "Report built", fields.ToSlice()...)
	NewJSONResponse().Body(toReport(report)).Write(w)
}
