package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/course-lab/courselab-lms/internal/assessment"
)

// PUT /records/{recordID}/score-override  { "score": 7.5 }  (null removes)
func SetRecordScoreOverrideHandler(agg *assessment.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Score *float64 `json:"score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := agg.SetRecordScoreOverride(r.Context(), chi.URLParam(r, "recordID"), req.Score); err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /attempts/{attemptID}/score-override
func SetAttemptScoreOverrideHandler(agg *assessment.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Score *float64 `json:"score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := agg.SetAttemptScoreOverride(r.Context(), chi.URLParam(r, "attemptID"), req.Score); err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /attempt-question-sets/{setID}/credit-override
func SetQuestionSetCreditOverrideHandler(agg *assessment.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Credit *float64 `json:"credit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Credit != nil && (*req.Credit < 0 || *req.Credit > 1) {
			http.Error(w, "credit must be in [0,1]", http.StatusBadRequest)
			return
		}
		if err := agg.SetQuestionSetCreditOverride(r.Context(), chi.URLParam(r, "setID"), req.Credit); err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /records/{recordID}/date-adjustments
func SetRecordDateAdjustmentsHandler(agg *assessment.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Assigned   *time.Time `json:"assigned"`
			InitialDue *time.Time `json:"initial_due"`
			FinalDue   *time.Time `json:"final_due"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := agg.SetRecordDateAdjustments(r.Context(), chi.URLParam(r, "recordID"),
			req.Assigned, req.InitialDue, req.FinalDue)
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /records/{recordID}/score
func GetRecordScoreHandler(store assessment.Store, agg *assessment.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := store.GetRecord(ctx, chi.URLParam(r, "recordID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		content, err := store.GetContent(ctx, rec.ContentID)
		if err != nil || content == nil {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		score, err := agg.RecordScore(ctx, content, rec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"record_id":      rec.ID,
			"score":          score,
			"score_override": rec.ScoreOverride,
		})
	}
}

// GET /changes?level=record&ref_id=...
func ListChangesHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := store.ChangesForRef(r.Context(), q.Get("level"), q.Get("ref_id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	}
}
