package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/raycs13/RealCasino/internal/config"
	"github.com/raycs13/RealCasino/internal/db"
	"github.com/raycs13/RealCasino/internal/game"
	"github.com/raycs13/RealCasino/internal/model"
	"github.com/raycs13/RealCasino/internal/ws"
)

type Server struct {
	store  *db.Store
	engine *game.Engine
	hub    *ws.Hub
	log    *logrus.Entry
	secret []byte
	cfg    config.Config
}

func NewServer(cfg config.Config, store *db.Store, engine *game.Engine, hub *ws.Hub, log *logrus.Logger) *Server {
	return &Server{
		store:  store,
		engine: engine,
		hub:    hub,
		log:    log.WithField("component", "api"),
		secret: []byte(cfg.JWTSecret),
		cfg:    cfg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Auth (public)
	r.Post("/api/register", s.register)
	r.Post("/api/login", s.login)

	// WebSocket; token travels as a query param since browsers cannot set
	// headers on the upgrade request.
	r.Get("/ws", s.handleWS)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/wallet", s.getWallet)

		r.Get("/api/game/state", s.gameState)
		r.Get("/api/game/spins", s.previousSpins)
		r.Post("/api/game/bets", s.placeBet)

		r.Get("/api/daily-reward", s.dailyRewardStatus)
		r.Post("/api/daily-reward/claim", s.claimDailyReward)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/api/admin/deposit", s.adminDeposit)
		})
	})

	return r
}

// ── Auth ─────────────────────────────────────────────

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Email == "" || req.Username == "" || len(req.Password) < 6 {
		jsonErr(w, 400, "email, username and password (min 6 chars) required")
		return
	}

	existing, _ := s.store.GetUserByEmail(r.Context(), req.Email)
	if existing != nil {
		jsonErr(w, 409, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonErr(w, 500, "hash failed")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, req.Username, string(hash), s.cfg.StartingBalance)
	if err != nil {
		jsonErr(w, 500, "create user failed")
		return
	}

	token := s.makeToken(user.ID, user.Role)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}

	token := s.makeToken(user.ID, user.Role)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) makeToken(userID string, role model.Role) string {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(72 * time.Hour).Unix(),
	}
	t, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return t
}

func (s *Server) parseToken(tokenStr string) (userID, role string, err error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}
	userID, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	return userID, role, nil
}

// ── Middleware ───────────────────────────────────────

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonErr(w, 401, "missing token")
			return
		}
		userID, role, err := s.parseToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			jsonErr(w, 401, err.Error())
			return
		}
		ctx := withUser(r.Context(), userID, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ctxRole).(string)
		if role != string(model.RoleAdmin) {
			jsonErr(w, 403, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wr := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wr, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wr.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── WebSocket ────────────────────────────────────────

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, _, err := s.parseToken(r.URL.Query().Get("token"))
	if err != nil {
		jsonErr(w, 401, "invalid token")
		return
	}
	s.hub.HandleWS(userID, w, r)
}

// ── Wallet ───────────────────────────────────────────

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	uid := r.Context().Value(ctxUserID).(string)
	bal, err := s.store.GetBalance(r.Context(), uid)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			jsonErr(w, 404, "user not found")
			return
		}
		jsonErr(w, 500, err.Error())
		return
	}
	json200(w, model.BalanceUpdate{UserID: uid, Balance: bal})
}

// ── Game ─────────────────────────────────────────────

func (s *Server) gameState(w http.ResponseWriter, r *http.Request) {
	json200(w, s.engine.State())
}

func (s *Server) previousSpins(w http.ResponseWriter, r *http.Request) {
	spins, err := s.store.LastSpins(r.Context(), 10)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if spins == nil {
		spins = []model.Spin{}
	}
	json200(w, model.PreviousSpins{Spins: spins})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	uid := r.Context().Value(ctxUserID).(string)

	var req model.PlaceBetReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}

	user, err := s.store.GetUser(r.Context(), uid)
	if err != nil || user == nil {
		jsonErr(w, 404, "user not found")
		return
	}

	result, err := s.engine.PlaceBet(r.Context(), user, req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRoundClosed):
			jsonErr(w, 409, err.Error())
		case errors.Is(err, model.ErrInvalidStake),
			errors.Is(err, model.ErrInvalidColor),
			errors.Is(err, model.ErrInsufficientBalance):
			jsonErr(w, 400, err.Error())
		default:
			jsonErr(w, 500, "bet failed")
		}
		return
	}
	json200(w, result)
}

// ── Daily Reward ─────────────────────────────────────

func (s *Server) dailyRewardStatus(w http.ResponseWriter, r *http.Request) {
	uid := r.Context().Value(ctxUserID).(string)
	user, err := s.store.GetUser(r.Context(), uid)
	if err != nil || user == nil {
		jsonErr(w, 404, "user not found")
		return
	}
	canClaim := user.LastClaim == nil || user.LastClaim.Before(startOfDay(time.Now()))
	json200(w, map[string]any{
		"can_claim":  canClaim,
		"last_claim": user.LastClaim,
		"reward":     s.cfg.DailyReward,
	})
}

func (s *Server) claimDailyReward(w http.ResponseWriter, r *http.Request) {
	uid := r.Context().Value(ctxUserID).(string)
	bal, err := s.store.ClaimDailyReward(r.Context(), uid, s.cfg.DailyReward)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAlreadyClaimed):
			jsonErr(w, 400, "already claimed today")
		case errors.Is(err, model.ErrUserNotFound):
			jsonErr(w, 404, "user not found")
		default:
			jsonErr(w, 500, err.Error())
		}
		return
	}
	s.hub.SendToUser(uid, game.EvtBalanceUpdate, model.BalanceUpdate{UserID: uid, Balance: bal})
	json200(w, map[string]any{"reward": s.cfg.DailyReward, "new_balance": bal})
}

// ── Admin ────────────────────────────────────────────

func (s *Server) adminDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		jsonErr(w, 400, "user_id and amount > 0 required")
		return
	}
	bal, err := s.store.Deposit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			jsonErr(w, 404, "user not found")
			return
		}
		jsonErr(w, 500, err.Error())
		return
	}
	s.hub.SendToUser(req.UserID, game.EvtBalanceUpdate, model.BalanceUpdate{UserID: req.UserID, Balance: bal})
	json200(w, model.BalanceUpdate{UserID: req.UserID, Balance: bal})
}

// ── Helpers ──────────────────────────────────────────

func withUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRole, role)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
