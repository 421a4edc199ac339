// Package api provides the HTTP and WebSocket server for running
// validation jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/config"
	"github.com/atlas-desktop/validation-backend/internal/data"
	"github.com/atlas-desktop/validation-backend/internal/engine"
	"github.com/atlas-desktop/validation-backend/internal/telemetry"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Job statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job tracks one asynchronous validation run
type Job struct {
	ID        string      `json:"id"`
	Operation string      `json:"operation"`
	Symbol    string      `json:"symbol"`
	Status    string      `json:"status"`
	Started   time.Time   `json:"started"`
	Finished  *time.Time  `json:"finished,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`

	cancel context.CancelFunc
}

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *config.Config
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	store      *data.Store
	quality    *data.QualityChecker
	engine     *engine.Engine
	telemetry  *telemetry.Metrics
	jobs       map[string]*Job
}

// NewServer creates the API server
func NewServer(logger *zap.Logger, cfg *config.Config, store *data.Store, eng *engine.Engine, tel *telemetry.Metrics) *Server {
	s := &Server{
		logger:    logger,
		config:    cfg,
		router:    mux.NewRouter(),
		hub:       NewHub(logger.Named("ws")),
		store:     store,
		quality:   data.NewQualityChecker(logger.Named("quality")),
		engine:    eng,
		telemetry: tel,
		jobs:      make(map[string]*Job),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/data/symbols", s.handleSymbols).Methods("GET")
	s.router.HandleFunc("/api/v1/data/history/{symbol}", s.handleHistory).Methods("GET")
	s.router.HandleFunc("/api/v1/data/quality/{symbol}", s.handleQuality).Methods("GET")

	s.router.HandleFunc("/api/v1/validate/montecarlo", s.handleMonteCarlo).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/bootstrap", s.handleBootstrap).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/crossval", s.handleCrossValidation).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/walkforward", s.handleWalkForward).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/walkforward/montecarlo", s.handleMonteCarloWalkForward).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/regime", s.handleRegimeAware).Methods("POST")
	s.router.HandleFunc("/api/v1/validate/regime/walkforward", s.handleRegimeWalkForward).Methods("POST")

	s.router.HandleFunc("/api/v1/jobs", s.handleListJobs).Methods("GET")
	s.router.HandleFunc("/api/v1/jobs/{id}", s.handleGetJob).Methods("GET")
	s.router.HandleFunc("/api/v1/jobs/{id}/cancel", s.handleCancelJob).Methods("POST")

	if s.config.Server.EnableMetrics && s.telemetry != nil {
		s.router.Handle("/metrics", s.telemetry.Handler()).Methods("GET")
	}
	s.router.HandleFunc(s.config.Server.WebSocketPath, s.hub.HandleConnection)
}

// Start serves HTTP until the listener fails or the server is stopped
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop cancels running jobs and shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, job := range s.jobs {
		if job.Status == StatusRunning {
			job.cancel()
		}
	}
	s.mu.Unlock()

	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.store.Symbols()
	if len(symbols) == 0 {
		symbols = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}
	bars := 0
	if v := r.URL.Query().Get("bars"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bars must be an integer")
			return
		}
		bars = parsed
	}

	series, err := s.store.Load(r.Context(), symbol, types.Timeframe(timeframe), bars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"bars":      series,
		"count":     len(series),
	})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}
	bars := 0
	if v := r.URL.Query().Get("bars"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bars must be an integer")
			return
		}
		bars = parsed
	}

	series, err := s.store.Load(r.Context(), symbol, types.Timeframe(timeframe), bars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.quality.Check(symbol, series))
}

// seriesRequest names the input series for a validation job
type seriesRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bars      int    `json:"bars"`
}

func (r *seriesRequest) normalize() {
	if r.Timeframe == "" {
		r.Timeframe = "1h"
	}
	if r.Symbol == "" {
		r.Symbol = "BTC/USDT"
	}
}

func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		MonteCarlo types.MonteCarloConfig `json:"monteCarlo"`
	}{MonteCarlo: s.config.Defaults.MonteCarlo}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpMonteCarlo, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunMonteCarlo(ctx, bars, req.MonteCarlo)
	})
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		Bootstrap types.BootstrapConfig `json:"bootstrap"`
	}{Bootstrap: s.config.Defaults.Bootstrap}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpBootstrap, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunBootstrap(ctx, bars, req.Bootstrap)
	})
}

func (s *Server) handleCrossValidation(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		CrossValidation types.CrossValidationConfig `json:"crossValidation"`
	}{CrossValidation: s.config.Defaults.CrossValidation}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpCrossValidation, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunCrossValidation(ctx, bars, req.CrossValidation)
	})
}

func (s *Server) handleWalkForward(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		WalkForward types.WalkForwardConfig `json:"walkForward"`
		Strategy    types.StrategyConfig    `json:"strategy"`
	}{WalkForward: s.config.Defaults.WalkForward, Strategy: s.config.Strategy}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpWalkForward, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunWalkForward(ctx, bars, req.WalkForward, req.Strategy)
	})
}

func (s *Server) handleMonteCarloWalkForward(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		WalkForward types.WalkForwardConfig `json:"walkForward"`
		Strategy    types.StrategyConfig    `json:"strategy"`
		MonteCarlo  types.MonteCarloConfig  `json:"monteCarlo"`
	}{
		WalkForward: s.config.Defaults.WalkForward,
		Strategy:    s.config.Strategy,
		MonteCarlo:  s.config.Defaults.MonteCarlo,
	}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpMonteCarloWalkForward, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunMonteCarloWalkForward(ctx, bars, req.WalkForward, req.Strategy, req.MonteCarlo)
	})
}

func (s *Server) handleRegimeAware(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		Regime     types.RegimeConfig     `json:"regime"`
		MonteCarlo types.MonteCarloConfig `json:"monteCarlo"`
	}{Regime: s.config.Defaults.Regime, MonteCarlo: s.config.Defaults.MonteCarlo}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpRegimeAware, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunRegimeAware(ctx, bars, req.Regime, req.MonteCarlo)
	})
}

func (s *Server) handleRegimeWalkForward(w http.ResponseWriter, r *http.Request) {
	req := struct {
		seriesRequest
		WalkForward types.WalkForwardConfig `json:"walkForward"`
		Strategy    types.StrategyConfig    `json:"strategy"`
		Regime      types.RegimeConfig      `json:"regime"`
	}{
		WalkForward: s.config.Defaults.WalkForward,
		Strategy:    s.config.Strategy,
		Regime:      s.config.Defaults.Regime,
	}
	if !s.decode(w, r, &req) {
		return
	}

	s.startJob(w, engine.OpRegimeWalkForward, req.seriesRequest, func(ctx context.Context, bars []*types.OHLCV) (interface{}, error) {
		return s.engine.RunRegimeWalkForward(ctx, bars, req.WalkForward, req.Strategy, req.Regime)
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	// Snapshots are taken under the lock so encoding never races with a
	// finishing job.
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	job, ok := s.jobs[mux.Vars(r)["id"]]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job, ok := s.jobs[mux.Vars(r)["id"]]
	var id, status string
	if ok {
		if job.Status == StatusRunning {
			job.cancel()
			job.Status = StatusCancelled
			now := time.Now()
			job.Finished = &now
		}
		id, status = job.ID, job.Status
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
}

// startJob loads the requested series, launches the operation in the
// background, and answers immediately with the job handle
func (s *Server) startJob(w http.ResponseWriter, op string, req seriesRequest, run func(context.Context, []*types.OHLCV) (interface{}, error)) {
	req.normalize()

	bars, err := s.store.Load(context.Background(), req.Symbol, types.Timeframe(req.Timeframe), req.Bars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		Operation: op,
		Symbol:    req.Symbol,
		Status:    StatusRunning,
		Started:   time.Now(),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go func() {
		defer cancel()
		result, err := run(ctx, bars)

		s.mu.Lock()
		now := time.Now()
		job.Finished = &now
		// A cancelled job keeps its status even if the run raced to a result.
		if job.Status == StatusRunning {
			if err != nil {
				job.Status = StatusFailed
				job.Error = err.Error()
			} else {
				job.Status = StatusCompleted
				job.Result = result
			}
		}
		status := job.Status
		s.mu.Unlock()

		s.hub.Broadcast("job:complete", map[string]interface{}{
			"id":        job.ID,
			"operation": op,
			"status":    status,
		})
	}()

	s.hub.Broadcast("job:started", map[string]interface{}{
		"id":        job.ID,
		"operation": op,
		"symbol":    req.Symbol,
	})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      job.ID,
		"status":  job.Status,
		"started": job.Started.Unix(),
	})
}

// decode parses the request body, reporting failures to the client. An
// empty body is accepted and leaves the configured defaults untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
