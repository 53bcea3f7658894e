package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ebaad-esr/QuizMaster/internal/app"
	"github.com/Ebaad-esr/QuizMaster/internal/domain"
)

// HostStore is the persistence surface the host and admin APIs use.
type HostStore interface {
	GetHostByEmail(ctx context.Context, email string) (domain.Host, error)
	ListHosts(ctx context.Context) ([]domain.Host, error)
	CreateHost(ctx context.Context, email, passwordHash string) (int64, error)
	DeleteHost(ctx context.Context, hostID int64) error
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, hostID int64) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, hostID int64, name string) (int64, error)
	DeleteQuiz(ctx context.Context, hostID, quizID int64) error
	ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
	AddQuestion(ctx context.Context, question domain.Question) (int64, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	QuizResults(ctx context.Context, quizID int64) ([]domain.Result, error)
}

// QuestionInvalidator drops cached question snapshots after authoring
// changes. Nil when no cache is configured.
type QuestionInvalidator interface {
	Invalidate(ctx context.Context, quizID int64) error
}

// HostHandler serves the authenticated host API and the super-admin
// console API. Start/end quiz route through the session engine, whose
// global lock is the single-active-quiz arbiter.
type HostHandler struct {
	engine     *app.Engine
	store      HostStore
	cache      QuestionInvalidator
	log        *zap.Logger
	jwtSecret  []byte
	tokenTTL   time.Duration
	adminToken string
}

func NewHostHandler(engine *app.Engine, store HostStore, cache QuestionInvalidator, log *zap.Logger, jwtSecret string, tokenTTL time.Duration, adminToken string) *HostHandler {
	return &HostHandler{
		engine:     engine,
		store:      store,
		cache:      cache,
		log:        log,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		adminToken: adminToken,
	}
}

// Register mounts all host and admin routes on mux.
func (h *HostHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/host/login", h.login)
	mux.HandleFunc("/api/host/quizzes", h.withHost(h.listQuizzes))
	mux.HandleFunc("/api/host/create-quiz", h.withHost(h.createQuiz))
	mux.HandleFunc("/api/host/delete-quiz", h.withHost(h.deleteQuiz))
	mux.HandleFunc("/api/host/quiz-details", h.withHost(h.quizDetails))
	mux.HandleFunc("/api/host/add-question", h.withHost(h.addQuestion))
	mux.HandleFunc("/api/host/delete-question", h.withHost(h.deleteQuestion))
	mux.HandleFunc("/api/host/start-quiz", h.withHost(h.startQuiz))
	mux.HandleFunc("/api/host/end-quiz", h.withHost(h.endQuiz))
	mux.HandleFunc("/api/host/results", h.withHost(h.results))
	mux.HandleFunc("/api/admin/login", h.adminLogin)
	mux.HandleFunc("/api/admin/hosts", h.withAdmin(h.adminListHosts))
	mux.HandleFunc("/api/admin/add-host", h.withAdmin(h.adminAddHost))
	mux.HandleFunc("/api/admin/delete-host", h.withAdmin(h.adminDeleteHost))
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	QuizID  int64  `json:"quizId,omitempty"`
	Hosts   any    `json:"hosts,omitempty"`
	Quizzes any    `json:"quizzes,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *HostHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	host, err := h.store.GetHostByEmail(r.Context(), req.Email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(host.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "invalid credentials"})
		return
	}
	token, err := h.signToken(host.ID)
	if err != nil {
		h.log.Error("sign token", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Token: token})
}

func (h *HostHandler) signToken(hostID int64) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(hostID, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

// withHost authenticates the request's bearer token and passes the host
// id through.
func (h *HostHandler) withHost(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			fail(w, http.StatusForbidden, "forbidden")
			return
		}
		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			fail(w, http.StatusForbidden, "forbidden")
			return
		}
		hostID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			fail(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, hostID)
	}
}

func (h *HostHandler) listQuizzes(w http.ResponseWriter, r *http.Request, hostID int64) {
	quizzes, err := h.store.ListQuizzes(r.Context(), hostID)
	if err != nil {
		h.log.Error("list quizzes", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Quizzes: quizzes})
}

func (h *HostHandler) createQuiz(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(w, http.StatusBadRequest, "quiz name required")
		return
	}
	id, err := h.store.CreateQuiz(r.Context(), hostID, req.Name)
	if errors.Is(err, domain.ErrValidation) {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "a quiz with this name already exists"})
		return
	}
	if err != nil {
		h.log.Error("create quiz", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, QuizID: id})
}

func (h *HostHandler) deleteQuiz(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		QuizID int64 `json:"quizId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.store.DeleteQuiz(r.Context(), hostID, req.QuizID); err != nil {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "quiz not found"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *HostHandler) quizDetails(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		QuizID int64 `json:"quizId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	quiz, err := h.store.GetQuiz(r.Context(), req.QuizID)
	if err != nil || quiz.HostID != hostID {
		fail(w, http.StatusNotFound, "quiz not found")
		return
	}
	questions, err := h.store.ActiveQuestions(r.Context(), req.QuizID)
	if err != nil {
		h.log.Error("list questions", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	playerCount := 0
	if snap := h.engine.Snapshot(); snap.QuizID == req.QuizID && snap.HostID == hostID {
		playerCount = snap.PlayerCount
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Details: map[string]any{
		"status":      quiz.Status,
		"joinCode":    quiz.JoinCode,
		"playerCount": playerCount,
		"questions":   questions,
	}})
}

func (h *HostHandler) addQuestion(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		QuizID             int64    `json:"quizId"`
		Text               string   `json:"text"`
		Options            []string `json:"options"`
		CorrectOptionIndex int      `json:"correctOptionIndex"`
		TimeLimit          int      `json:"timeLimit"`
		Score              int      `json:"score"`
		NegativeScore      int      `json:"negativeScore"`
		ImageURL           string   `json:"imageUrl"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" || len(req.Options) < 2 ||
		req.CorrectOptionIndex < 0 || req.CorrectOptionIndex >= len(req.Options) {
		fail(w, http.StatusBadRequest, "question needs text, at least two options, and a valid correct index")
		return
	}
	quiz, err := h.store.GetQuiz(r.Context(), req.QuizID)
	if err != nil || quiz.HostID != hostID {
		fail(w, http.StatusNotFound, "quiz not found")
		return
	}
	_, err = h.store.AddQuestion(r.Context(), domain.Question{
		QuizID:             req.QuizID,
		Text:               req.Text,
		Options:            req.Options,
		CorrectOptionIndex: req.CorrectOptionIndex,
		TimeLimit:          req.TimeLimit,
		Score:              req.Score,
		NegativeScore:      req.NegativeScore,
		ImageURL:           req.ImageURL,
	})
	if err != nil {
		h.log.Error("add question", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.invalidateQuestions(r.Context(), req.QuizID)
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *HostHandler) deleteQuestion(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		ID     int64 `json:"id"`
		QuizID int64 `json:"quizId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	quiz, err := h.store.GetQuiz(r.Context(), req.QuizID)
	if err != nil || quiz.HostID != hostID {
		fail(w, http.StatusNotFound, "quiz not found")
		return
	}
	if err := h.store.DeleteQuestion(r.Context(), req.ID); err != nil {
		h.log.Error("delete question", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.invalidateQuestions(r.Context(), req.QuizID)
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *HostHandler) invalidateQuestions(ctx context.Context, quizID int64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, quizID); err != nil {
		h.log.Warn("question cache invalidation failed", zap.Int64("quizId", quizID), zap.Error(err))
	}
}

func (h *HostHandler) startQuiz(w http.ResponseWriter, r *http.Request, hostID int64) {
	var req struct {
		QuizID int64 `json:"quizId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	quiz, err := h.store.GetQuiz(r.Context(), req.QuizID)
	if err != nil || quiz.HostID != hostID {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "quiz not found"})
		return
	}
	if err := h.engine.StartQuiz(r.Context(), hostID, req.QuizID); err != nil {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *HostHandler) endQuiz(w http.ResponseWriter, r *http.Request, hostID int64) {
	if err := h.engine.EndQuiz(r.Context(), hostID); err != nil {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "no active quiz for this host"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// results streams a detailed CSV: one column per question with
// Correct / Wrong / NO ANSWER per player, ordered like the leaderboard.
func (h *HostHandler) results(w http.ResponseWriter, r *http.Request, hostID int64) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "quizId is required")
		return
	}
	quiz, err := h.store.GetQuiz(r.Context(), quizID)
	if err != nil || quiz.HostID != hostID {
		fail(w, http.StatusNotFound, "quiz not found")
		return
	}
	questions, err := h.store.ActiveQuestions(r.Context(), quizID)
	if err != nil {
		h.log.Error("list questions", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	results, err := h.store.QuizResults(r.Context(), quizID)
	if err != nil {
		h.log.Error("list results", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=quiz_%d_results_detailed.csv", quizID))

	cw := csv.NewWriter(w)
	header := []string{"Name", "Branch", "Year", "Total Score"}
	for i, q := range questions {
		header = append(header, fmt.Sprintf("Q%d: %s", i+1, q.Text))
	}
	_ = cw.Write(header)

	for _, res := range results {
		row := []string{res.Name, res.Branch, res.Year, strconv.Itoa(res.Score)}
		for _, q := range questions {
			status := "NO ANSWER"
			if selected, ok := res.Answers[q.ID]; ok && selected != nil {
				if *selected == q.CorrectOptionIndex {
					status = "Correct"
				} else {
					status = "Wrong"
				}
			}
			row = append(row, status)
		}
		_ = cw.Write(row)
	}
	cw.Flush()
}

func (h *HostHandler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Password != h.adminToken {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "invalid password"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Token: h.adminToken})
}

func (h *HostHandler) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != h.adminToken {
			fail(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func (h *HostHandler) adminListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.store.ListHosts(r.Context())
	if err != nil {
		h.log.Error("list hosts", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Hosts: hosts})
}

func (h *HostHandler) adminAddHost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "email and password required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := h.store.CreateHost(r.Context(), req.Email, string(hash)); err != nil {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Message: "email already exists"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *HostHandler) adminDeleteHost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID int64 `json:"hostId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.store.DeleteHost(r.Context(), req.HostID); err != nil {
		h.log.Error("delete host", zap.Error(err))
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
