package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shiftsig/btcsign/internal/btcsign"
)

// newRouter wires the demo dispatcher's HTTP surface: one endpoint per
// session operation, plus a health check and a standalone reset.
func newRouter(c *btcsign.Controller, version string) chi.Router {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestLogging)

	slog.Info("router initialized", "middleware", []string{"recoverer", "requestLogging"})

	r.Get("/api/health", healthHandler(version))

	r.Route("/api/sign", func(r chi.Router) {
		r.Post("/init", initHandler(c))
		r.Post("/prevtx/init", prevtxInitHandler(c))
		r.Post("/prevtx/input", prevtxInputHandler(c))
		r.Post("/prevtx/output", prevtxOutputHandler(c))
		r.Post("/input/pass1", inputPass1Handler(c))
		r.Post("/output", outputHandler(c))
		r.Post("/input/pass2", inputPass2Handler(c))
		r.Post("/antiklepto", antikleptoHandler(c))
		r.Post("/reset", resetHandler(c))
	})

	return r
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
