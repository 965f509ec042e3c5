package web

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"hoststat/internal/apperr"
	"hoststat/internal/netx"
	"hoststat/internal/system"
)

// Snapshotter takes one snapshot of the host
type Snapshotter interface {
	Collect(ctx context.Context) (*system.Snapshot, error)
}

// InfoFunc returns static host information
type InfoFunc func(ctx context.Context) (*system.SystemInfo, error)

// Service serves snapshots, host info and self-metrics
type Service struct {
	snapshots Snapshotter
	info      InfoFunc
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewService creates a Service. metrics may not be nil.
func NewService(snapshots Snapshotter, info InfoFunc, metrics *Metrics, logger zerolog.Logger) *Service {
	return &Service{
		snapshots: snapshots,
		info:      info,
		metrics:   metrics,
		logger:    logger,
	}
}

// Routes registers the HTTP routes with the given mux
func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleSnapshot)
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", s.metrics.Handler())
}

// TakeSnapshot collects a snapshot, recording metrics and logging failures.
// A snapshot abandoned because ctx was canceled is neither counted nor logged.
func (s *Service) TakeSnapshot(ctx context.Context) (*system.Snapshot, error) {
	start := time.Now()
	snap, err := s.snapshots.Collect(ctx)
	if ctx.Err() != nil {
		if err == nil {
			err = ctx.Err()
		}
		return nil, err
	}

	s.metrics.ObserveSnapshot(time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Str("source", apperr.SourceOf(err)).Msg("snapshot failed")
		return nil, err
	}
	return snap, nil
}

// handleSnapshot serves the current snapshot on GET /
func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		netx.WriteNotFound(w)
		return
	}
	if r.Method != http.MethodGet {
		netx.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	snap, err := s.TakeSnapshot(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		netx.WriteInternalServerError(w, "Failed to sample system usage", err)
		return
	}

	netx.WriteJSON(w, http.StatusOK, snap)
}
