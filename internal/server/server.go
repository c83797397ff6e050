// Package server exposes the upload pipeline over HTTP.
package server

import (
	"context"
	"errors"

	"dualstore/internal/auth"
	"dualstore/internal/ledger"
	"dualstore/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
)

// multipartOverhead is the slack allowed on top of the file size cap for
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

// History lists recorded uploads. *ledger.Ledger implements it.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
}

type Config struct {
	Service *upload.Service

	// History backs GET /uploads. The route reports 404 when nil.
	History History

	// Authenticator guards the upload routes. Nil disables authentication.
	Authenticator auth.AuthEngine

	// Gatherer is exposed on GET /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// Server routes HTTP requests into the upload pipeline.
type Server struct {
	cfg Config
}

// NewServer validates cfg and returns a new Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("upload service must not be nil")
	}

	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	return &Server{cfg: cfg}, nil
}

// maxBodySize returns the request body cap for POST /upload.
func (s *Server) maxBodySize() int64 {
	return s.cfg.Service.Options().MaxFileSize + multipartOverhead
}
