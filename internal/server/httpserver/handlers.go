package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/leaderboard"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/service"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
)

type userData struct {
	User model.PublicUser `json:"user"`
}

type authResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Data      userData  `json:"data"`
	Code      string    `json:"code"`
}

type userResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Data    userData `json:"data"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UsersCount int    `json:"usersCount"`
}

type leaderboardResponse struct {
	Status string `json:"status"`
	Data   struct {
		Sort    leaderboard.SortKey      `json:"sort"`
		Entries []model.LeaderboardEntry `json:"entries"`
	} `json:"data"`
}

type levelsResponse struct {
	Status string `json:"status"`
	Data   struct {
		Levels  []catalog.Level `json:"levels"`
		TotalXP int             `json:"totalXP"`
	} `json:"data"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, codeSignup)
		return
	}
	tok, a, err := s.auth.Register(r.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		s.writeError(w, r, err, codeSignup)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{
		Status:    "success",
		Message:   "Agent profile created successfully! Welcome to Hacking-Zone.",
		Token:     tok.AccessToken,
		ExpiresAt: tok.ExpiresAt,
		Data:      userData{User: a.Public()},
		Code:      "AGENT_CREATED",
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, codeLogin)
		return
	}
	tok, a, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		s.writeError(w, r, err, codeLogin)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Status:    "success",
		Message:   "Access granted! Welcome back, agent.",
		Token:     tok.AccessToken,
		ExpiresAt: tok.ExpiresAt,
		Data:      userData{User: a.Public()},
		Code:      "ACCESS_GRANTED",
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	a, ok := accountFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthorized, codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Status: "success", Data: userData{User: a.Public()}})
}

func (s *Server) updateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := AccountIDFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthorized, codeProgress)
		return
	}
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, codeProgress)
		return
	}
	a, err := s.auth.UpdateProgress(r.Context(), id, req.snapshot())
	if err != nil {
		s.writeError(w, r, err, codeProgress)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Status:  "success",
		Message: "Progress saved",
		Data:    userData{User: a.Public()},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	n, err := s.auth.Count(r.Context())
	if err != nil {
		s.log.Warn("health: count accounts", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Storage unavailable", Code: "STORAGE_UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "OK",
		Message:    "Hacking-Zone backend is running!",
		UsersCount: n,
	})
}

func (s *Server) rankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := leaderboard.ParseSortKey(q.Get("sort"))
	if err != nil {
		s.writeError(w, r, err, codeInternal)
		return
	}
	limit := defaultLeaderboardLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			s.writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", errs.ErrValidation, maxLeaderboardLimit), codeInternal)
			return
		}
		limit = n
	}
	entries, err := s.auth.Leaderboard(r.Context(), key, limit)
	if err != nil {
		s.writeError(w, r, err, codeInternal)
		return
	}
	var resp leaderboardResponse
	resp.Status = "success"
	resp.Data.Sort = key
	resp.Data.Entries = entries
	if resp.Data.Entries == nil {
		resp.Data.Entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// levels lists the catalog, optionally filtered by ?difficulty= and ordered by ?sort=.
func (s *Server) levels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tier catalog.Difficulty
	if v := q.Get("difficulty"); v != "" && v != "all" {
		d, ok := catalog.ParseDifficulty(v)
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: unknown difficulty %q", errs.ErrValidation, v), codeInternal)
			return
		}
		tier = d
	}
	key := catalog.SortKey(q.Get("sort"))
	switch key {
	case "", catalog.SortByID, catalog.SortByDifficulty, catalog.SortByXP:
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown sort %q", errs.ErrValidation, key), codeInternal)
		return
	}

	levels := s.cat.Filter(tier)
	catalog.Sort(levels, key)

	var resp levelsResponse
	resp.Status = "success"
	resp.Data.Levels = levels
	resp.Data.TotalXP = s.cat.AvailableXP()
	writeJSON(w, http.StatusOK, resp)
}
