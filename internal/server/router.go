package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving the upload API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /upload", s.RequireAuthentication(http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /uploads", s.RequireAuthentication(http.HandlerFunc(s.handleListUploads)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	return LogRequest(Recoverer(SlashFix(mux)))
}
