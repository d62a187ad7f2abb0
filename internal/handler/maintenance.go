package handler

import "net/http"

// Sweep handles POST /maintenance/sweep. It completes every active booking
// that has ended.
func (s *Server) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.maint.SweepExpired(r.Context(), s.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Completed: n})
}

// Reconcile handles POST /maintenance/reconcile.
func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.maint.Reconcile(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
