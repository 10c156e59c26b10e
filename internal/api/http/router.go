package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type Deps struct {
	Service *exam.Service
	Auth    *authmw.AuthService
	Users   UserDirectory
	Events  EventFeed // optional
	DB      Pinger    // optional

	CORSOrigins     []string
	EnableLocalAuth bool
	// AttachRole re-reads the caller's role from the user store on every
	// request instead of trusting the token claim.
	AttachRole bool
	Logger     zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(
		hlog.NewHandler(d.Logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.RemoteAddrHandler("ip"),
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Msg("request")
		}),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", ReadyzHandler(d.DB))

	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		if d.AttachRole {
			pr.Use(authmw.AttachRoleFromDB(d.Users, false))
		}
		svc := d.Service
		viewAttempts := rbac.RequireAny("attempt:view-own", "attempt:view-all")

		pr.With(rbac.Require("exam:view")).Get("/exams", ListExamsHandler(svc))
		pr.With(rbac.Require("exam:create")).Post("/exams", PutExamHandler(svc))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(svc))
		pr.With(rbac.Require("attempt:create")).Post("/exams/{examID}/attempts", StartAttemptHandler(svc))

		pr.With(rbac.Require("attempt:create")).Post("/attempts", StartAttemptHandler(svc))
		pr.With(viewAttempts).Get("/attempts", ListAttemptsHandler(svc))
		pr.With(viewAttempts).Get("/attempts/{attemptID}", GetAttemptHandler(svc))
		pr.With(rbac.Require("attempt:save")).Put("/attempts/{attemptID}", SaveProgressHandler(svc))
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(svc))
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/abandon", AbandonAttemptHandler(svc))

		pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.Users))
		pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.Users))
		pr.With(rbac.Require("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.Users))
		pr.With(rbac.Require("users:manage")).Patch("/users/{userID}/role", AdminUpdateUserRoleHandler(d.Users))

		if d.Events != nil {
			pr.With(rbac.Require("events:view")).Get("/events", ListEventsHandler(d.Events))
		}
	})

	return r
}
