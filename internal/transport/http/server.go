package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/dispatch/internal/service/reconciler"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Server обслуживает HTTP API поверх lifecycle store и reconciler.
type Server struct {
	store      *lifecycle.Store
	reconciler *reconciler.Reconciler
	gateway    domain.PaymentGateway
	logger     *log.Entry
	router     *mux.Router
	httpServer *http.Server
}

// NewServer создаёт сервер и регистрирует маршруты.
func NewServer(
	addr string,
	store *lifecycle.Store,
	rec *reconciler.Reconciler,
	gateway domain.PaymentGateway,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-server")
	}

	s := &Server{
		store:      store,
		reconciler: rec,
		gateway:    gateway,
		logger:     logger,
		router:     mux.NewRouter(),
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.listOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/claim", s.claimOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/advance", s.advanceOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.cancelOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/charge", s.chargeOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/timeline", s.orderTimelineHandler).Methods(http.MethodGet)

	api.HandleFunc("/webhooks/payment", s.paymentWebhookHandler).Methods(http.MethodPost)
}

// Router возвращает http.Handler для тестов.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start запускает HTTP сервер.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown останавливает сервер с учётом ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
