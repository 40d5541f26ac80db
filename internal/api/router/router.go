package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightkind/clinic-platform/internal/appointments"
	"github.com/brightkind/clinic-platform/internal/calendar"
	"github.com/brightkind/clinic-platform/internal/clients"
	"github.com/brightkind/clinic-platform/internal/documents"
	httpmiddleware "github.com/brightkind/clinic-platform/internal/http/middleware"
	"github.com/brightkind/clinic-platform/internal/kb"
	"github.com/brightkind/clinic-platform/internal/messaging"
	"github.com/brightkind/clinic-platform/internal/notify"
	"github.com/brightkind/clinic-platform/internal/reports"
	"github.com/brightkind/clinic-platform/internal/sessions"
	"github.com/brightkind/clinic-platform/internal/tasks"
	"github.com/brightkind/clinic-platform/internal/users"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	ClientsHandler       *clients.Handler
	SessionsHandler      *sessions.Handler
	AppointmentsHandler  *appointments.Handler
	TasksHandler         *tasks.Handler
	UsersHandler         *users.Handler
	MessagingHandler     *messaging.Handler
	NotificationsHandler *notify.Handler
	KBHandler            *kb.Handler
	ReportsHandler       *reports.Handler
	CalendarHandler      *calendar.Handler
	DocumentsHandler     *documents.Handler

	Auth               httpmiddleware.AuthConfig
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Staff API (bearer token required)
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.Authenticated(cfg.Auth))

		if cfg.ClientsHandler != nil {
			api.Route("/clients", func(r chi.Router) {
				r.Post("/", cfg.ClientsHandler.Create)
				r.Get("/", cfg.ClientsHandler.List)
				r.Get("/{id}", cfg.ClientsHandler.Get)
				r.Put("/{id}", cfg.ClientsHandler.Update)
				r.Delete("/{id}", cfg.ClientsHandler.Delete)
			})
		}

		if cfg.SessionsHandler != nil {
			api.Route("/sessions", func(r chi.Router) {
				r.Post("/", cfg.SessionsHandler.Create)
				r.Get("/", cfg.SessionsHandler.List)
				r.Get("/{id}", cfg.SessionsHandler.Get)
				r.Put("/{id}", cfg.SessionsHandler.Update)
				r.Delete("/{id}", cfg.SessionsHandler.Delete)
				r.Post("/{id}/attachments", cfg.SessionsHandler.UploadAttachment)
				r.Get("/{id}/attachments", cfg.SessionsHandler.DownloadAttachment)
			})
		}

		if cfg.AppointmentsHandler != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.AppointmentsHandler.Create)
				r.Get("/", cfg.AppointmentsHandler.List)
				r.Post("/check-conflicts", cfg.AppointmentsHandler.CheckConflicts)
				r.Get("/{id}", cfg.AppointmentsHandler.Get)
				r.Put("/{id}", cfg.AppointmentsHandler.Update)
				r.Delete("/{id}", cfg.AppointmentsHandler.Delete)
			})
		}

		if cfg.TasksHandler != nil {
			api.Route("/tasks", func(r chi.Router) {
				r.Post("/", cfg.TasksHandler.Create)
				r.Get("/", cfg.TasksHandler.List)
				r.Get("/{id}", cfg.TasksHandler.Get)
				r.Put("/{id}", cfg.TasksHandler.Update)
				r.Delete("/{id}", cfg.TasksHandler.Delete)
			})
		}

		if cfg.UsersHandler != nil {
			api.Route("/users", func(r chi.Router) {
				r.Post("/", cfg.UsersHandler.Create)
				r.Get("/", cfg.UsersHandler.List)
				r.Get("/me", cfg.UsersHandler.Me)
				r.Get("/{id}", cfg.UsersHandler.Get)
				r.Put("/{id}", cfg.UsersHandler.Update)
				r.Delete("/{id}", cfg.UsersHandler.Delete)
			})
		}

		if cfg.MessagingHandler != nil {
			api.Route("/messages/threads", func(r chi.Router) {
				r.Post("/", cfg.MessagingHandler.CreateThread)
				r.Get("/", cfg.MessagingHandler.ListThreads)
				r.Post("/{id}", cfg.MessagingHandler.PostMessage)
				r.Get("/{id}", cfg.MessagingHandler.ListMessages)
				r.Get("/{id}/stream", cfg.MessagingHandler.Stream)
			})
		}

		if cfg.NotificationsHandler != nil {
			api.Route("/notifications", func(r chi.Router) {
				r.Get("/", cfg.NotificationsHandler.List)
				r.Post("/{id}/read", cfg.NotificationsHandler.MarkRead)
			})
		}

		if cfg.KBHandler != nil {
			api.Route("/kb", func(r chi.Router) {
				r.Post("/", cfg.KBHandler.Create)
				r.Get("/", cfg.KBHandler.List)
				r.Get("/{id}", cfg.KBHandler.Get)
				r.Put("/{id}", cfg.KBHandler.Update)
				r.Delete("/{id}", cfg.KBHandler.Delete)
			})
		}

		if cfg.ReportsHandler != nil {
			api.Route("/reports", func(r chi.Router) {
				r.Post("/", cfg.ReportsHandler.Create)
				r.Get("/", cfg.ReportsHandler.List)
				r.Get("/{id}", cfg.ReportsHandler.Get)
				r.Put("/{id}", cfg.ReportsHandler.Update)
				r.Delete("/{id}", cfg.ReportsHandler.Delete)
			})
		}

		if cfg.CalendarHandler != nil {
			api.Route("/calendar", func(r chi.Router) {
				r.Post("/sync-appointment", cfg.CalendarHandler.SyncAppointment)
				r.Post("/sync-existing", cfg.CalendarHandler.SyncExisting)
				r.Put("/connection", cfg.CalendarHandler.UpsertConnection)
				r.Delete("/connection/{userID}", func(w http.ResponseWriter, req *http.Request) {
					cfg.CalendarHandler.DeleteConnection(w, req, chi.URLParam(req, "userID"))
				})
			})
			api.Get("/debug/calendar", cfg.CalendarHandler.Debug)
		}

		if cfg.DocumentsHandler != nil {
			api.Route("/documents", func(r chi.Router) {
				r.Post("/generate", cfg.DocumentsHandler.Generate)
				r.Post("/append", cfg.DocumentsHandler.Append)
				r.Get("/append", cfg.DocumentsHandler.Probe)
			})
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
