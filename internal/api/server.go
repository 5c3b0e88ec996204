package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/identity"
	"github.com/tazhate/holidaybot/internal/service"
)

type Server struct {
	cfg        *config.Config
	exceptions *service.ExceptionService
	reminders  *service.ReminderService
	subjects   *service.SubjectService
	resolver   identity.Resolver
	log        zerolog.Logger
	server     *http.Server
}

func New(cfg *config.Config, exceptions *service.ExceptionService, reminders *service.ReminderService, subjects *service.SubjectService, resolver identity.Resolver, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		exceptions: exceptions,
		reminders:  reminders,
		subjects:   subjects,
		resolver:   resolver,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s.jsonResponse(w, http.StatusOK, okResponse{OK: true})
	})

	// Owner routes, identity from the LINE token
	mux.HandleFunc("GET /liff/subjects", s.ownerAuth(s.liffSubjects))
	mux.HandleFunc("POST /liff/holidays/create", s.ownerAuth(s.liffCreate))
	mux.HandleFunc("POST /liff/holidays/update", s.ownerAuth(s.liffUpdate))
	mux.HandleFunc("GET /liff/holidays/list", s.ownerAuth(s.liffList))
	mux.HandleFunc("POST /liff/holidays/batch", s.ownerAuth(s.liffBatch))
	mux.HandleFunc("POST /liff/holidays/delete", s.ownerAuth(s.liffDelete))
	mux.HandleFunc("GET /liff/holidays/reminders/list", s.ownerAuth(s.liffReminders))
	mux.HandleFunc("POST /liff/holidays/reminders/set", s.ownerAuth(s.liffSetReminders))
	mux.HandleFunc("GET /liff/holidays/calendar.ics", s.ownerAuth(s.liffCalendar))

	// Internal routes, disabled without API_KEY
	if s.cfg.APIKey != "" {
		mux.HandleFunc("GET /subjects", s.apiKeyAuth(s.apiSubjects))
		mux.HandleFunc("POST /subjects", s.apiKeyAuth(s.apiImportSubjects))
		mux.HandleFunc("POST /holidays", s.apiKeyAuth(s.apiCreate))
		mux.HandleFunc("GET /holidays/list", s.apiKeyAuth(s.apiList))
		mux.HandleFunc("POST /holidays/delete", s.apiKeyAuth(s.apiDelete))
		mux.HandleFunc("POST /holidays/reminders/set", s.apiKeyAuth(s.apiSetReminders))
		mux.HandleFunc("POST /cancel/query", s.apiKeyAuth(s.apiCancelQuery))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.jsonError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	})

	return s.requestLog(s.cors(mux))
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
