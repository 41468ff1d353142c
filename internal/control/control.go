// Package control exposes a running battle over HTTP, replacing
// original_source's interactive terminal prompts (host.py/joiner.py's input()
// loops, spectator.py's chat()) with a small JSON API a CLI, web UI, or test
// harness can drive (spec.md §6 "User-driver interface"). Grounded on the
// teacher's p2p/api.go: the same apiFunc/makeHTTPHandlerFunc/JSON helper
// shape, the same CORS middleware, one handler per driver intent.
package control

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/dispatch"
)

// Driver is the set of battle intents a participant can issue (spec.md §6).
// peer.Host and peer.Joiner both already satisfy this without any change.
type Driver interface {
	Attack(moveName string, useAttackBoost bool) error
	ArmDefenseBoost() error
	SendChatText(text string) error
	SendChatSticker(stickerData string) error
}

type apiFunc func(w http.ResponseWriter, r *http.Request) error

func makeHTTPHandlerFunc(f apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			JSON(w, statusFor(err), map[string]any{"error": err.Error()})
		}
	}
}

// JSON writes v as a JSON response body with the given status code.
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Server is a battle side's HTTP front door: one Driver to issue intents
// against, and the dispatch.Engine backing it to report state from.
type Server struct {
	listenAddr string
	driver     Driver
	battle     *dispatch.Engine
}

// NewServer builds a Server. driver and battle must belong to the same
// running peer (e.g. a *peer.Host and its Battle field).
func NewServer(listenAddr string, driver Driver, battle *dispatch.Engine) *Server {
	return &Server{listenAddr: listenAddr, driver: driver, battle: battle}
}

// Run starts the HTTP server and blocks, matching the teacher's
// APIServer.Run (a bare http.ListenAndServe call; the caller decides whether
// to run this in its own goroutine).
func (s *Server) Run() error {
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/api/attack", makeHTTPHandlerFunc(s.handleAttack)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/defend", makeHTTPHandlerFunc(s.handleDefend)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/chat", makeHTTPHandlerFunc(s.handleChat)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/state", makeHTTPHandlerFunc(s.handleGetState)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/health", makeHTTPHandlerFunc(s.handleHealth)).Methods("GET", "OPTIONS")

	logrus.WithFields(logrus.Fields{
		"addr": s.listenAddr,
	}).Info("control: API server starting")

	return http.ListenAndServe(s.listenAddr, r)
}
