package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/course-lab/courselab-lms/internal/assessment"
)

// POST /contents/{contentID}/coursewide-attempts  { "seed": "..." }
// Generates a shared paper-exam attempt on the enrollment-less record.
func CreateCoursewideAttemptHandler(store assessment.Store, resolver *assessment.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Seed string `json:"seed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		content, err := store.GetContent(ctx, chi.URLParam(r, "contentID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if content == nil {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		att, list, err := resolver.CreateCoursewideAttempt(ctx, content, req.Seed)
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		writeJSON(w, map[string]interface{}{
			"attempt":       att,
			"question_list": list,
		})
	}
}

// POST /attempts/{attemptID}/fork  { "enrollment_id": "...", "began": "..." }
func ForkCoursewideAttemptHandler(store assessment.Store, resolver *assessment.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			EnrollmentID string     `json:"enrollment_id"`
			Began        *time.Time `json:"began"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EnrollmentID == "" {
			http.Error(w, "enrollment_id required", http.StatusBadRequest)
			return
		}
		base, err := store.GetAttempt(ctx, chi.URLParam(r, "attemptID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if base == nil {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		rec, err := store.GetRecord(ctx, base.RecordID)
		if err != nil || rec == nil {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		content, err := store.GetContent(ctx, rec.ContentID)
		if err != nil || content == nil {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		began := time.Now()
		if req.Began != nil {
			began = *req.Began
		}
		att, err := resolver.ForkCoursewideAttempt(ctx, content, base,
			&assessment.Enrollment{ID: req.EnrollmentID}, began)
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		writeJSON(w, att)
	}
}

// POST /contents/{contentID}/seed-search
func SeedSearchHandler(store assessment.Store, maxIterations int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Avoid         map[string]int `json:"avoid"`
			Include       map[string]int `json:"include"`
			StartSeed     string         `json:"start_seed"`
			MaxIterations int            `json:"max_iterations"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		content, err := store.GetContent(ctx, chi.URLParam(r, "contentID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a := content.AssessmentObject()
		if a == nil {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		iters := req.MaxIterations
		if iters <= 0 || iters > maxIterations {
			iters = maxIterations
		}
		seed := assessment.SearchSeed(a, assessment.SeedSearchParams{
			Avoid:         req.Avoid,
			Include:       req.Include,
			StartSeed:     req.StartSeed,
			MaxIterations: iters,
		})
		writeJSON(w, map[string]string{"seed": seed})
	}
}

// PUT /contents/{contentID}  (designer content upsert)
func PutContentHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			assessment.Content
			Assessment *assessment.Assessment `json:"assessment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		c := req.Content
		c.ID = chi.URLParam(r, "contentID")
		if req.Assessment != nil {
			c.Object = req.Assessment
		}
		if c.AttemptAggregation == "" {
			c.AttemptAggregation = assessment.AggregateMax
		}
		if err := store.PutContent(r.Context(), &c); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, c)
	}
}

// PUT /enrollments/{enrollmentID}
func PutEnrollmentHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e assessment.Enrollment
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		e.ID = chi.URLParam(r, "enrollmentID")
		if e.Role == "" {
			e.Role = assessment.RoleStudent
		}
		if err := store.PutEnrollment(r.Context(), &e); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, e)
	}
}
