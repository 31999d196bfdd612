// Package steamtest provides an in-process fake of the Steam Web API
// endpoints used by the resolver.
package steamtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/emilythestrangee/uservoice/backend/internal/steam"
)

const APIKey = "test-api-key"

// Player is the canned data served for one Steam id. Nil pointers are
// omitted from responses.
type Player struct {
	SteamID  uint64
	Apps     []steam.App
	Playtime *float64
	Level    *int
	Summary  *steam.PlayerSummary
}

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	players map[uint64]Player
	failing map[string]bool
}

func NewServer(t testing.TB, players ...Player) *Server {
	t.Helper()
	s := &Server{
		players: make(map[uint64]Player),
		failing: make(map[string]bool),
	}
	for _, p := range players {
		s.players[p.SteamID] = p
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ISteamUser/GetPublisherAppOwnership/v3/", s.handle("steamid", func(p Player) any {
		return map[string]any{"appownership": map[string]any{"apps": p.Apps}}
	}))
	mux.HandleFunc("/IPlayerService/GetSingleGamePlaytime/v1/", s.handle("steamid", func(p Player) any {
		resp := map[string]any{}
		if p.Playtime != nil {
			resp["playtime_forever"] = *p.Playtime
		}
		return map[string]any{"response": resp}
	}))
	mux.HandleFunc("/IPlayerService/GetSteamLevel/v1/", s.handle("steamid", func(p Player) any {
		resp := map[string]any{}
		if p.Level != nil {
			resp["player_level"] = *p.Level
		}
		return map[string]any{"response": resp}
	}))
	mux.HandleFunc("/ISteamUser/GetPlayerSummaries/v2/", s.handle("steamids", func(p Player) any {
		players := []steam.PlayerSummary{}
		if p.Summary != nil {
			players = append(players, *p.Summary)
		}
		return map[string]any{"response": map[string]any{"players": players}}
	}))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Fail makes the endpoint at path answer 500 from now on.
func (s *Server) Fail(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = true
}

func (s *Server) handle(idParam string, body func(Player) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != APIKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		id, err := strconv.ParseUint(r.URL.Query().Get(idParam), 10, 64)
		if err != nil {
			http.Error(w, "bad steam id", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		failing := s.failing[r.URL.Path]
		player, ok := s.players[id]
		s.mu.Unlock()

		if failing {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !ok {
			player = Player{SteamID: id}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body(player))
	}
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
