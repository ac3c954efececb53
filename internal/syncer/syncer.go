// Package syncer is the storage-agnostic façade the CLI and the server use to
// push papers to a backend: a GitHub data repository or a literature-manager
// HTTP server.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"literature-manager/internal/config"
	"literature-manager/internal/githubstore"
	"literature-manager/internal/metrics"
	"literature-manager/internal/model"
	"literature-manager/internal/search"
)

var (
	ErrBusy          = errors.New("a sync is already in progress")
	ErrNotConfigured = errors.New("sync backend not configured")
	ErrNotFound      = errors.New("paper not found on sync backend")
	ErrMissingFile   = errors.New("no PDF content to sync")
	ErrUnavailable   = errors.New("sync backend unavailable")
)

// File is the binary payload that goes with a paper.
type File struct {
	Name      string
	Data      []byte
	Thumbnail []byte
}

type Status struct {
	Backend    string     `json:"backend"`
	Configured bool       `json:"configured"`
	Busy       bool       `json:"busy"`
	Target     string     `json:"target"`
	DataURL    string     `json:"dataUrl,omitempty"`
	LastSync   *time.Time `json:"lastSync,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Syncer is implemented by every storage backend.
type Syncer interface {
	Name() string
	IsConfigured() bool
	// SyncPaper uploads the paper's files and returns the paper as the
	// backend now describes it. Only one SyncPaper runs at a time per Syncer;
	// a concurrent call fails with ErrBusy.
	SyncPaper(ctx context.Context, paper model.Paper, file *File) (*model.Paper, error)
	// SyncAllData replaces the backend's collection with papers.
	SyncAllData(ctx context.Context, papers []model.Paper) error
	LoadSharedData(ctx context.Context) ([]model.Paper, error)
	UpdatePaper(ctx context.Context, id int, patch map[string]any) (*model.Paper, error)
	DeletePaper(ctx context.Context, id int) (*model.Paper, error)
	Search(ctx context.Context, filter search.Filter) ([]model.Paper, error)
	// TestConnection returns a short description of who or what answered.
	TestConnection(ctx context.Context) (string, error)
	Status() Status
}

// New builds the backend selected by cfg.Sync.Target.
func New(cfg *config.Config) (Syncer, error) {
	switch cfg.Sync.Target {
	case config.SyncTargetGitHub:
		client := githubstore.New(githubstore.ConfigFrom(cfg.GitHub))
		return NewGitHubSyncer(client, cfg.GitHub), nil
	case config.SyncTargetServer:
		hc := &http.Client{Timeout: time.Duration(cfg.GitHub.HTTPTimeoutSeconds) * time.Second}
		return NewServerSyncer(cfg.Sync.ServerURL, hc), nil
	default:
		return nil, fmt.Errorf("unknown sync target %q", cfg.Sync.Target)
	}
}

// tracker holds the busy flag and the outcome of the last sync.
type tracker struct {
	busy atomic.Bool

	mu       sync.Mutex
	lastSync *time.Time
	lastErr  string
}

func (t *tracker) begin() error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (t *tracker) end(now time.Time, err error) {
	t.mu.Lock()
	if err != nil {
		t.lastErr = err.Error()
	} else {
		t.lastSync = &now
		t.lastErr = ""
	}
	t.mu.Unlock()
	t.busy.Store(false)
}

func (t *tracker) fill(s *Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.Busy = t.busy.Load()
	s.LastSync = t.lastSync
	s.LastError = t.lastErr
}

func observe(backend, op string, err error) {
	metrics.SyncOperations.WithLabelValues(backend, op, metrics.Result(err)).Inc()
}
