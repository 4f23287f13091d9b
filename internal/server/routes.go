package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"spacecraft-server/internal/store"
)

const maxMatchesLimit = 100

// MatchLister serves the match history route.
type MatchLister interface {
	RecentMatches(ctx context.Context, limit int) ([]store.MatchRow, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Game    string `json:"game"`
	Match   string `json:"match"`
	Step    uint64 `json:"step"`
	Players int    `json:"players"`
	Objects int    `json:"objects"`
	Conns   int    `json:"connections"`
}

// Routes builds the HTTP handler: WebSocket sessions, metrics, health and
// match history.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/player", s.serveWS(RolePlayer))
	mux.HandleFunc("/ws/monitor", s.serveWS(RoleMonitor))
	mux.Handle("/metrics", s.metrics.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Game:    s.game.Status().String(),
			Match:   s.game.MatchID(),
			Step:    s.game.Step(),
			Players: s.game.PlayerCount(),
			Objects: s.game.ObjectCount(),
			Conns:   s.hub.TotalConns(),
		})
	})

	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.matches == nil {
			http.Error(w, "match history disabled", http.StatusNotFound)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxMatchesLimit)
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		matches, err := s.matches.RecentMatches(ctx, limit)
		if err != nil {
			s.log.Error("list matches", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if matches == nil {
			matches = []store.MatchRow{}
		}
		writeJSON(w, http.StatusOK, matches)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
