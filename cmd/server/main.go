package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/course-lab/courselab-lms/internal/api/http"
	"github.com/course-lab/courselab-lms/internal/assessment"
	auth "github.com/course-lab/courselab-lms/internal/auth/middleware"
	"github.com/course-lab/courselab-lms/internal/config"
	"github.com/course-lab/courselab-lms/internal/db"
	"github.com/course-lab/courselab-lms/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := assessment.NewSQLStore(dbh, cfg.DBDriver)
	agg := assessment.NewAggregator(store)
	resolver := assessment.NewResolver(store, agg, nil)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	authSvc.AdminUser = cfg.AdminUser
	authSvc.AdminPassHash = cfg.AdminPassHash

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Student flow
		pr.With(rbac.Require("attempt:resolve")).
			Get("/contents/{contentID}/attempt", api.ResolveAttemptHandler(store, resolver))
		pr.With(rbac.Require("response:record")).
			Post("/question-attempts/{questionAttemptID}/responses", api.RecordResponseHandler(resolver))
		pr.With(rbac.Require("solution:view")).
			Post("/question-attempts/{questionAttemptID}/solution-viewed", api.MarkSolutionViewedHandler(resolver))
		pr.With(rbac.RequireAny("score:view-own", "score:view-all")).
			Get("/records/{recordID}/score", api.GetRecordScoreHandler(store, agg))
		pr.With(rbac.RequireAny("attempt:resolve", "attempt:preview")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))

		// Instructor flow
		pr.With(rbac.Require("score:override")).
			Put("/records/{recordID}/score-override", api.SetRecordScoreOverrideHandler(agg))
		pr.With(rbac.Require("score:override")).
			Put("/attempts/{attemptID}/score-override", api.SetAttemptScoreOverrideHandler(agg))
		pr.With(rbac.Require("score:override")).
			Put("/attempt-question-sets/{setID}/credit-override", api.SetQuestionSetCreditOverrideHandler(agg))
		pr.With(rbac.Require("score:override")).
			Put("/records/{recordID}/date-adjustments", api.SetRecordDateAdjustmentsHandler(agg))
		pr.With(rbac.Require("changes:view")).
			Get("/changes", api.ListChangesHandler(store))
		pr.With(rbac.Require("attempt:generate-coursewide")).
			Post("/contents/{contentID}/coursewide-attempts", api.CreateCoursewideAttemptHandler(store, resolver))
		pr.With(rbac.Require("attempt:fork-coursewide")).
			Post("/attempts/{attemptID}/fork", api.ForkCoursewideAttemptHandler(store, resolver))
		pr.With(rbac.Require("seed:search")).
			Post("/contents/{contentID}/seed-search", api.SeedSearchHandler(store, cfg.SeedSearchIterations))

		// Designer flow
		pr.With(rbac.Require("content:edit")).
			Put("/contents/{contentID}", api.PutContentHandler(store))
		pr.With(rbac.Require("content:edit")).
			Put("/enrollments/{enrollmentID}", api.PutEnrollmentHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
