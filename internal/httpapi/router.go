// Package httpapi implements the administrative HTTP control plane (spec
// §6): GET /health, POST /shutdown, and every stage's own contributed
// routes mounted under /<stage-name>/....
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
)

// shutdownMagicCode is the literal debugging stub gate on /shutdown (spec
// §6, §9: "treat as a debugging stub, not security").
const shutdownMagicCode = "0xDEADBEEF"

// Endpointer exposes whatever a Pipeline needs to mount stage-contributed
// routes, kept minimal so httpapi does not import the pipeline package
// directly and create a cycle with stages that themselves want to build
// routers for tests.
type Endpointer interface {
	Endpoints(router *mux.Router)
}

// NewRouter builds the /Processor-rooted control-plane router. onShutdown
// is invoked once the magic code has been validated; it should begin
// graceful shutdown and the process should exit 0 once it completes (spec
// §6 exit codes).
func NewRouter(pipe Endpointer, onShutdown func()) *mux.Router {
	root := mux.NewRouter()
	api := root.PathPrefix("/Processor").Subrouter()

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/shutdown", shutdownHandler(onShutdown)).Methods(http.MethodPost)

	pipe.Endpoints(api)

	return root
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type shutdownRequest struct {
	MagicCode string `json:"magic_code"`
}

func shutdownHandler(onShutdown func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req shutdownRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.MagicCode != shutdownMagicCode {
			http.Error(w, "invalid magic_code", http.StatusBadRequest)
			return
		}
		log.Control.Infof("shutdown requested via control plane")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		if onShutdown != nil {
			go onShutdown()
		}
	}
}
