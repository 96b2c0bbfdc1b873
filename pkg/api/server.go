package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/pubsub"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// Enqueuer accepts jobs for the pipeline. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job order.Job) error
	Len() int
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	// SendBuffer is the per-connection outbound message buffer.
	SendBuffer     int
	// Metrics is mounted at /metrics when set.
	Metrics        http.Handler
	// Audit receives one entry per submission. Defaults to a no-op.
	Audit          storage.AuditLog
}

// Server handles REST API and WebSocket connections
type Server struct {
	opts     Options
	store    storage.OrderStore
	jobs     Enqueuer
	registry *pubsub.Registry
	validate *validator.Validate
	router   *mux.Router
	http     *http.Server
	logger   *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(opts Options, store storage.OrderStore, jobs Enqueuer, registry *pubsub.Registry, logger *zap.SugaredLogger) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.Audit == nil {
		opts.Audit = storage.NopAuditLog{}
	}
	s := &Server{
		opts:     opts,
		store:    store,
		jobs:     jobs,
		registry: registry,
		validate: newValidator(),
		router:   mux.NewRouter(),
		logger:   util.OrNop(logger),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
		return order.IsSupportedToken(fl.Field().String())
	})
	return v
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
}

// Handler returns the routes wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infow("api_listening", "addr", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", describeValidation(err))
		return
	}

	job := order.Job{
		OrderID:  uuid.NewString(),
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		Amount:   req.Amount,
	}
	if err := job.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	ctx := r.Context()
	if err := s.store.Create(ctx, order.New(job, time.Now().UTC())); err != nil {
		s.logger.Errorw("order_create_failed", "order_id", job.OrderID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to record order", err.Error())
		return
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		// Nothing will ever pick the order up; close it out.
		reason := fmt.Sprintf("enqueue: %v", err)
		if _, uerr := s.store.UpdateStatus(ctx, job.OrderID, order.StatusFailed, order.Fields{ErrorMessage: reason}); uerr != nil {
			s.logger.Errorw("order_fail_on_enqueue", "order_id", job.OrderID, "err", uerr)
		}
		s.logger.Warnw("order_enqueue_failed", "order_id", job.OrderID, "err", err)
		s.audit("ORDER_ENQUEUE_FAILED", job, map[string]any{"error": err.Error()})
		respondError(w, http.StatusServiceUnavailable, "order not queued", err.Error())
		return
	}

	s.logger.Infow("order_submitted",
		"order_id", job.OrderID,
		"token_in", job.TokenIn,
		"token_out", job.TokenOut,
		"amount", job.Amount)
	s.audit("ORDER_SUBMIT", job, nil)

	respondJSON(w, ExecuteOrderResponse{OrderID: job.OrderID, Status: order.StatusPending})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	o, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load order", err.Error())
		return
	}

	respondJSON(w, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status", string(status))
		return
	}

	orders, err := s.store.List(r.Context(), status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list orders", err.Error())
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}

	respondJSON(w, OrderListResponse{Orders: orders, Count: len(orders)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{
		Status:           "ok",
		QueueDepth:       s.jobs.Len(),
		SubscribedOrders: s.registry.Orders(),
	})
}

// ==============================
// Helper Functions
// ==============================

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "token":
			msgs = append(msgs, fmt.Sprintf("%s: unsupported token %q", fe.Field(), fe.Value()))
		case "nefield":
			msgs = append(msgs, fmt.Sprintf("%s: must differ from tokenIn", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s: must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// audit writes a submission event to the audit log
func (s *Server) audit(event string, job order.Job, extra map[string]any) {
	data := map[string]any{
		"order_id":  job.OrderID,
		"token_in":  job.TokenIn,
		"token_out": job.TokenOut,
		"amount":    job.Amount,
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := s.opts.Audit.Append(event, data); err != nil {
		s.logger.Warnw("audit_append_failed", "event", event, "order_id", job.OrderID, "err", err)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
