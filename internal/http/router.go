package http

import (
	"net/http"

	"pulse/internal/auth"
	"pulse/internal/config"
	"pulse/internal/http/handler"
	mw "pulse/internal/http/middleware"
	"pulse/internal/subscription"
	"pulse/internal/task"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT, pipeline handler.Runner) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: db, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	users := &auth.Users{DB: db}
	taskStore := &task.Store{DB: db}
	subs := &subscription.Service{DB: db}

	me := &handler.MeHandler{Users: users}
	subH := &handler.SubscriptionHandler{Subs: subs}
	taskH := &handler.TaskHandler{Store: taskStore}
	insightH := &handler.InsightHandler{Store: taskStore}
	intelH := &handler.IntelHandler{Pipeline: pipeline}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/me", me.Me)
		r.Put("/me/device", me.UpdateDevice)
		r.Put("/me/google-token", me.UpdateGoogleToken)

		r.Get("/subscription/status", subH.Status)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskH.List)
			r.Post("/", taskH.Create)
			r.Get("/due-today", taskH.DueToday)
			r.Patch("/{id}/status", taskH.UpdateStatus)
			r.Delete("/", taskH.Delete)
		})

		r.Get("/insights", insightH.List)

		r.Post("/intel/emails/refresh", intelH.Refresh)
		r.Post("/intel/emails/analyze", intelH.Analyze)
	})

	return r
}
