package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/course-lab/courselab-lms/internal/assessment"
	"github.com/course-lab/courselab-lms/internal/rbac"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// resolveStatus maps the resolver's error taxonomy onto HTTP statuses. None
// of these are swallowed; the message always reaches the caller.
func resolveStatus(err error) int {
	switch {
	case errors.Is(err, assessment.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, assessment.ErrAssessmentUnavailable):
		return http.StatusForbidden
	case errors.Is(err, assessment.ErrInvalidAttempt):
		return http.StatusBadRequest
	case errors.Is(err, assessment.ErrNoOpenAttempt),
		errors.Is(err, assessment.ErrAttemptExpired),
		errors.Is(err, assessment.ErrNoAttemptAvailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// actorRole maps the token's claim and the course enrollment onto the actor
// class the resolver switches on. The enrollment is authoritative; privileged
// claims only matter when no enrollment exists.
func actorRole(claim string, e *assessment.Enrollment) assessment.Role {
	if e != nil {
		return e.Role
	}
	switch claim {
	case "instructor":
		return assessment.RoleInstructor
	case "designer", "admin":
		return assessment.RoleDesigner
	default:
		return assessment.RoleNone
	}
}

// GET /contents/{contentID}/attempt
func ResolveAttemptHandler(store assessment.Store, resolver *assessment.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		contentID := chi.URLParam(r, "contentID")

		content, err := store.GetContent(ctx, contentID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if content == nil {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		var enrollment *assessment.Enrollment
		if sub := rbac.SubjectFromContext(ctx); sub != "" {
			enrollment, err = store.GetEnrollment(ctx, content.CourseID, sub)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		q := r.URL.Query()
		params := assessment.ResolveParams{
			Content:          content,
			Enrollment:       enrollment,
			Role:             actorRole(rbac.RoleFromContext(ctx), enrollment),
			Seed:             q.Get("seed"),
			ContentAttemptID: q.Get("content_attempt_id"),
		}
		if ids := q.Get("question_attempt_ids"); ids != "" {
			params.QuestionAttemptIDs = strings.Split(ids, ",")
		}

		res, err := resolver.ResolveAttempt(ctx, params)
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		writeJSON(w, res)
	}
}

// POST /question-attempts/{questionAttemptID}/responses
func RecordResponseHandler(resolver *assessment.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload string  `json:"payload"`
			Credit  float64 `json:"credit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Credit < 0 || req.Credit > 1 {
			http.Error(w, "credit must be in [0,1]", http.StatusBadRequest)
			return
		}
		resp, reason, err := resolver.RecordResponse(r.Context(), assessment.RecordResponseParams{
			QuestionAttemptID: chi.URLParam(r, "questionAttemptID"),
			Payload:           req.Payload,
			Credit:            req.Credit,
		})
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		writeJSON(w, map[string]interface{}{
			"response":            resp,
			"not_recorded_reason": reason,
		})
	}
}

// POST /question-attempts/{questionAttemptID}/solution-viewed
func MarkSolutionViewedHandler(resolver *assessment.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := resolver.MarkSolutionViewed(r.Context(), chi.URLParam(r, "questionAttemptID"))
		if err != nil {
			http.Error(w, err.Error(), resolveStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		att, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if att == nil {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		writeJSON(w, att)
	}
}
