package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/middleware"
	"github.com/castquest/castquest-backend/internal/service"
)

type Server struct {
	router *mux.Router
	http   *http.Server
}

type Deps struct {
	Cfg          *config.Config
	Tasks        *service.TaskService
	Participants *service.ParticipantService
	Users        *service.UserService
}

func NewServer(deps Deps) *Server {
	router := mux.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: deps.Cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept"},
	})

	s := &Server{router: router}
	s.routes(deps)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Cfg.Port),
		Handler:      corsHandler.Handler(middleware.Recover(middleware.Logging(router))),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) routes(deps Deps) {
	h := NewHandler(deps.Tasks, deps.Participants, deps.Users)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.Health).Methods("GET")

	api.HandleFunc("/users", h.RegisterUser).Methods("POST")
	api.HandleFunc("/users/{fid}", h.GetUser).Methods("GET")

	api.HandleFunc("/tasks", h.CreateTask).Methods("POST")
	api.HandleFunc("/tasks", h.ListTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", h.GetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/cancel", h.CancelTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/complete", h.CompleteTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/join", h.JoinTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/participants", h.ListParticipants).Methods("GET")

	api.HandleFunc("/participants/{id}/proof", h.SubmitProof).Methods("POST")
	api.HandleFunc("/participants/{id}/verify", h.ManualVerify).Methods("POST")
	api.HandleFunc("/participants/{id}/reverify", h.ReVerify).Methods("POST")
	api.HandleFunc("/participants/{id}/claim", h.RequestClaim).Methods("POST")
	api.HandleFunc("/participants/{id}/confirm", h.ConfirmClaim).Methods("POST")
	api.HandleFunc("/participants/{id}", h.GetParticipant).Methods("GET")
}

func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
