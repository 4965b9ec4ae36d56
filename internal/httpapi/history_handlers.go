package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dkurian/surtitle/internal/costs"
	"github.com/dkurian/surtitle/internal/store"
)

// handleHistory returns a session's persisted caption records in sequence
// order. Defaults to the active session.
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = r.ActiveSession()
	}
	if sessionID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
		return
	}

	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	records, err := r.store.ListRecords(req.Context(), sessionID, limit)
	if err != nil {
		r.logger.Printf("history: failed to list records for %s: %v", sessionID, err)
		captureError(req, err, "history: list records failed")
		http.Error(w, `{"error": "failed to load history"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"records":    records,
	})
}

// handleUsage returns billable usage and estimated cost for a session.
func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = r.ActiveSession()
	}
	if sessionID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
		return
	}

	usage, err := r.store.Usage(req.Context(), sessionID)
	if err != nil {
		r.logger.Printf("usage: failed to aggregate for %s: %v", sessionID, err)
		captureError(req, err, "usage: aggregation failed")
		http.Error(w, `{"error": "failed to load usage"}`, http.StatusInternalServerError)
		return
	}

	total, breakdown := costBreakdown(usage)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":           sessionID,
		"usage":                usage,
		"estimated_cost_cents": total,
		"cost_breakdown":       breakdown,
	})
}

// costBreakdown prices a session's persisted usage. Only speech and
// translation are metered; monitor synthesis characters are not persisted,
// so no tts line appears here.
func costBreakdown(u store.UsageTotals) (int, map[string]int) {
	estimated := costs.CalculateSessionCosts(costs.SessionMetrics{
		AudioSeconds:     u.AudioSeconds,
		TranslationChars: u.TranslationChars,
	})
	return estimated.TotalCostCents, map[string]int{
		"speech":    estimated.SpeechCostCents,
		"translate": estimated.TranslateCostCents,
	}
}

// handleMetrics exposes live pipeline counters for the operator console.
func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	seq := r.pipe.SequencerMetrics()
	q := r.pipe.Queue()

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     r.ActiveSession(),
		"unresolved":     q.Unresolved(),
		"overflows":      q.Overflows(),
		"released":       seq.Released,
		"force_dropped":  seq.ForceDropped,
		"late_discarded": seq.LateDiscarded,
		"subscribers":    r.pipe.SubscriberCount(),
		"draining":       r.sessions.IsDraining(),
		"connections":    r.sessions.ActiveCount(),
	})
}
