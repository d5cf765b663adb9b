package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OliveiraNt/kmt/internal/adapters/http/mid"
	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server provides the HTTP API and event stream for kmt.
type Server struct {
	coord  *application.Coordinator
	router chi.Router
}

// New creates a new HTTP server instance.
func New(coord *application.Coordinator) *Server {
	s := &Server{coord: coord}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(mid.I18n)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/lang", ChangeLanguage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/brokers", s.apiListBrokers)
		r.Get("/connections", s.apiListConnections)
		r.Route("/brokers/{broker}", func(r chi.Router) {
			r.Get("/status", s.apiBrokerStatus)
			r.Delete("/connection", s.apiDisconnect)

			r.Get("/topics", s.apiListTopics)
			r.Post("/topics", s.apiCreateTopic)
			r.Get("/topics/{topic}", s.apiDescribeTopic)
			r.Get("/topics/{topic}/state", s.apiTopicState)
			r.Delete("/topics/{topic}", s.apiDeleteTopic)

			r.Get("/consumer-groups/{group}", s.apiDescribeConsumerGroup)
		})

		r.Post("/senders/{sender}/sessions", s.apiStartSender)
		r.Post("/listeners/{listener}/sessions", s.apiStartListener)
		r.Get("/sessions", s.apiListSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.apiGetSession)
			r.Delete("/", s.apiStopSession)
			r.Post("/restart", s.apiRestartSession)
			r.Post("/messages", s.apiSendMessage)
			r.Get("/messages", s.apiSessionOutput)
		})

		r.Get("/events", s.apiEvents)
		r.Get("/events/ws", s.wsEvents)
	})
	return r
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		utils.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ChangeLanguage changes the language preference via a query parameter and sets a cookie.
func ChangeLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		http.Error(w, "lang is required", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "lang",
		Value:    lang,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   31536000,
	})
	w.WriteHeader(http.StatusNoContent)
}
