package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ebaad-esr/QuizMaster/internal/domain"
)

// leaderboardTop caps how many ranked entries are published.
const leaderboardTop = 20

// ResultStore is the durable persistence boundary the engine writes
// through. Upserts must be atomic per (quiz id, name) row.
type ResultStore interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	SetQuizStatus(ctx context.Context, quizID int64, status domain.Status, joinCode string) error
	ResetHostQuizzes(ctx context.Context, hostID int64) error
	UpsertResult(ctx context.Context, result domain.Result) error
	ClearResults(ctx context.Context, quizID int64) error
	Leaderboard(ctx context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error)
}

// QuestionSource provides the ordered question list for a quiz. It may be
// the store itself or a cache in front of it.
type QuestionSource interface {
	ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// JoinRequest is the admission payload from a player connection.
type JoinRequest struct {
	Name     string `json:"name"`
	Branch   string `json:"branch"`
	Year     string `json:"year"`
	JoinCode string `json:"joinCode"`
}

// Snapshot is a read-only view of the live session for status endpoints.
type Snapshot struct {
	Status      domain.Status
	HostID      int64
	QuizID      int64
	QuizName    string
	JoinCode    string
	PlayerCount int
}

type QuizStatePayload struct {
	Status   domain.Status `json:"status"`
	QuizName string        `json:"quizName"`
}

type PlayerCountPayload struct {
	Count int `json:"count"`
}

type QuizStartedPayload struct {
	QuizName string `json:"quizName"`
}

// QuestionView is the player-facing shape of a question; it omits the
// correct option index.
type QuestionView struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	TimeLimit     int      `json:"timeLimit"`
	Score         int      `json:"score"`
	NegativeScore int      `json:"negativeScore"`
	ImageURL      string   `json:"imageUrl,omitempty"`
}

type QuestionPayload struct {
	Question QuestionView `json:"question"`
	Index    int          `json:"index"`
}

type AnswerResultPayload struct {
	IsCorrect           bool `json:"isCorrect"`
	ScoreChange         int  `json:"scoreChange"`
	CorrectOptionIndex  int  `json:"correctOptionIndex"`
	SelectedOptionIndex *int `json:"selectedOptionIndex"`
	Score               int  `json:"score"`
}

type QuizFinishedPayload struct {
	Score int `json:"score"`
}

type LeaderboardPayload struct {
	Results  []domain.LeaderboardEntry `json:"results"`
	QuizName string                    `json:"quizName"`
}

// Engine owns the single global quiz session: lifecycle state, the frozen
// question list, and the registry of connected players. All mutation goes
// through its methods, each of which runs to completion under one mutex,
// so inbound commands are processed with the same atomicity as a
// single-threaded event loop.
type Engine struct {
	store     ResultStore
	questions QuestionSource
	hub       *Hub
	log       *zap.Logger

	now     func() time.Time
	genCode func() string

	mu       sync.Mutex
	status   domain.Status
	hostID   int64
	quizID   int64
	quizName string
	joinCode string
	frozen   []domain.Question
	players  map[string]*domain.Player
}

func NewEngine(store ResultStore, questions QuestionSource, hub *Hub, log *zap.Logger) *Engine {
	return NewEngineWithClock(store, questions, hub, log, time.Now)
}

// NewEngineWithClock is test-only for deterministic timestamps.
func NewEngineWithClock(store ResultStore, questions QuestionSource, hub *Hub, log *zap.Logger, now func() time.Time) *Engine {
	return &Engine{
		store:     store,
		questions: questions,
		hub:       hub,
		log:       log,
		now:       now,
		genCode:   generateJoinCode,
		status:    domain.StatusWaiting,
		players:   make(map[string]*domain.Player),
	}
}

// StartQuiz activates a quiz for hostID. Exactly one quiz may be active
// server-wide; a start while any quiz is live fails without touching
// state. On success all registered players are reset, prior durable
// results for the quiz are cleared, and lifecycle events are broadcast.
func (e *Engine) StartQuiz(ctx context.Context, hostID, quizID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == domain.StatusActive {
		return domain.ErrQuizConflict
	}
	if !e.status.CanTransitionTo(domain.StatusActive) {
		return fmt.Errorf("illegal transition %s -> %s: %w", e.status, domain.StatusActive, domain.ErrValidation)
	}

	quiz, err := e.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	questions, err := e.questions.ActiveQuestions(ctx, quizID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	// Any earlier active row this host left behind (e.g. from a crash)
	// goes back to waiting before the new one is marked active.
	if err := e.store.ResetHostQuizzes(ctx, hostID); err != nil {
		return fmt.Errorf("reset host quizzes: %w", err)
	}
	code := e.genCode()
	if err := e.store.SetQuizStatus(ctx, quizID, domain.StatusActive, code); err != nil {
		return fmt.Errorf("activate quiz: %w", err)
	}
	// Fresh start: the board for this quiz begins empty.
	if err := e.store.ClearResults(ctx, quizID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	e.status = domain.StatusActive
	e.hostID = hostID
	e.quizID = quizID
	e.quizName = quiz.Name
	e.joinCode = code
	e.frozen = questions
	for _, p := range e.players {
		p.Score = 0
		p.Answers = make(domain.AnswerMap)
		p.QuestionIndex = -1
	}

	e.log.Info("quiz started",
		zap.Int64("quizId", quizID),
		zap.Int64("hostId", hostID),
		zap.Int("questions", len(questions)))

	e.hub.Broadcast(Event{Type: EventQuizStarted, Payload: QuizStartedPayload{QuizName: quiz.Name}})
	e.hub.Broadcast(Event{Type: EventLeaderboard, Payload: LeaderboardPayload{Results: []domain.LeaderboardEntry{}, QuizName: quiz.Name}})
	return nil
}

// EndQuiz finishes the live session. Only the active host may end it.
// Every registered player receives a terminal quizFinished event with
// their final score; the session then returns to idle. Players stay
// connected and are reset by the next StartQuiz.
func (e *Engine) EndQuiz(ctx context.Context, hostID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.StatusActive {
		return domain.ErrQuizNotActive
	}
	if e.hostID != hostID {
		return domain.ErrForbidden
	}

	if err := e.store.SetQuizStatus(ctx, e.quizID, domain.StatusWaiting, ""); err != nil {
		return fmt.Errorf("persist quiz status: %w", err)
	}

	e.status = domain.StatusFinished
	for connID, p := range e.players {
		e.hub.SendTo(connID, Event{Type: EventQuizFinished, Payload: QuizFinishedPayload{Score: p.Score}})
	}

	e.log.Info("quiz ended", zap.Int64("quizId", e.quizID), zap.Int64("hostId", hostID))

	e.status = domain.StatusWaiting
	e.hostID = 0
	e.quizID = 0
	e.joinCode = ""
	e.frozen = nil
	return nil
}

// Connected registers a new viewer connection: it receives the current
// session state and everyone gets a fresh player count.
func (e *Engine) Connected(connID string) QuizStatePayload {
	e.mu.Lock()
	state := QuizStatePayload{Status: e.status, QuizName: e.quizName}
	count := len(e.players)
	e.mu.Unlock()

	e.hub.SendTo(connID, Event{Type: EventQuizState, Payload: state})
	e.hub.Broadcast(Event{Type: EventPlayerCount, Payload: PlayerCountPayload{Count: count}})
	return state
}

// Join admits a player directly into the live session: no waiting room.
// The join code must match the generated code exactly and the display
// name must be unique among connected players, ignoring case.
func (e *Engine) Join(ctx context.Context, connID string, req JoinRequest) error {
	e.mu.Lock()

	if e.status != domain.StatusActive {
		e.mu.Unlock()
		return domain.ErrQuizNotActive
	}
	if req.JoinCode != e.joinCode {
		e.mu.Unlock()
		return domain.ErrInvalidJoinCode
	}
	if strings.TrimSpace(req.Name) == "" {
		e.mu.Unlock()
		return fmt.Errorf("player name required: %w", domain.ErrValidation)
	}
	for _, p := range e.players {
		if strings.EqualFold(p.Name, req.Name) {
			e.mu.Unlock()
			return domain.ErrNameTaken
		}
	}

	e.players[connID] = &domain.Player{
		Name:          req.Name,
		Branch:        req.Branch,
		Year:          req.Year,
		Answers:       make(domain.AnswerMap),
		QuestionIndex: -1,
	}
	count := len(e.players)
	quizName := e.quizName
	e.mu.Unlock()

	e.log.Info("player joined", zap.String("name", req.Name), zap.Int("players", count))

	e.hub.Broadcast(Event{Type: EventPlayerCount, Payload: PlayerCountPayload{Count: count}})
	e.hub.SendTo(connID, Event{Type: EventQuizStarted, Payload: QuizStartedPayload{QuizName: quizName}})
	return nil
}

// Disconnect removes the player immediately. Best-effort, never fails;
// durable results already written under the player's name survive.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	_, wasPlayer := e.players[connID]
	delete(e.players, connID)
	count := len(e.players)
	e.mu.Unlock()

	if wasPlayer {
		e.hub.Broadcast(Event{Type: EventPlayerCount, Payload: PlayerCountPayload{Count: count}})
	}
}

// NextQuestion advances the caller's monotonic cursor and sends either
// the question at the new index or, past the end, the terminal finished
// event with the final score. A no-op for unregistered connections or
// while no quiz is live.
func (e *Engine) NextQuestion(connID string) {
	e.mu.Lock()

	player, ok := e.players[connID]
	if !ok || e.status != domain.StatusActive {
		e.mu.Unlock()
		return
	}
	player.QuestionIndex++
	idx := player.QuestionIndex
	if idx >= len(e.frozen) {
		score := player.Score
		e.mu.Unlock()
		e.hub.SendTo(connID, Event{Type: EventQuizFinished, Payload: QuizFinishedPayload{Score: score}})
		return
	}
	q := e.frozen[idx]
	e.mu.Unlock()

	e.hub.SendTo(connID, Event{Type: EventQuestion, Payload: QuestionPayload{
		Question: QuestionView{
			ID:            q.ID,
			Text:          q.Text,
			Options:       q.Options,
			TimeLimit:     q.TimeLimit,
			Score:         q.Score,
			NegativeScore: q.NegativeScore,
			ImageURL:      q.ImageURL,
		},
		Index: idx,
	}})
}

// SubmitAnswer scores the caller's answer to their current question.
// optionIndex nil means the client-side timer expired with no answer.
// The first answer per question wins; duplicates are silently ignored,
// which makes late and timeout-triggered submissions race-free.
func (e *Engine) SubmitAnswer(ctx context.Context, connID string, optionIndex *int) error {
	e.mu.Lock()

	player, ok := e.players[connID]
	if !ok || player.QuestionIndex < 0 || player.QuestionIndex >= len(e.frozen) {
		e.mu.Unlock()
		return nil
	}
	question := e.frozen[player.QuestionIndex]
	if _, answered := player.Answers[question.ID]; answered {
		e.mu.Unlock()
		return nil
	}

	isCorrect := optionIndex != nil && *optionIndex == question.CorrectOptionIndex
	scoreChange := -question.NegativeScore
	if isCorrect {
		scoreChange = question.Score
	}
	player.Score += scoreChange
	player.Answers[question.ID] = optionIndex

	result := domain.Result{
		QuizID:     e.quizID,
		Name:       player.Name,
		Branch:     player.Branch,
		Year:       player.Year,
		Score:      player.Score,
		FinishTime: e.now().UnixMilli(),
		Answers:    player.Answers.Clone(),
	}
	outcome := AnswerResultPayload{
		IsCorrect:           isCorrect,
		ScoreChange:         scoreChange,
		CorrectOptionIndex:  question.CorrectOptionIndex,
		SelectedOptionIndex: optionIndex,
		Score:               player.Score,
	}
	quizID := e.quizID
	quizName := e.quizName
	e.mu.Unlock()

	e.hub.SendTo(connID, Event{Type: EventAnswerResult, Payload: outcome})

	// Persist before the leaderboard broadcast so a write failure is
	// surfaced to the submitter without other clients having seen an
	// updated board. The next scored answer re-upserts the full state.
	if err := e.store.UpsertResult(ctx, result); err != nil {
		e.log.Error("persist result failed", zap.String("player", result.Name), zap.Error(err))
		return fmt.Errorf("persist result: %w", err)
	}

	entries, err := e.store.Leaderboard(ctx, quizID, leaderboardTop)
	if err != nil {
		e.log.Error("leaderboard query failed", zap.Error(err))
		return fmt.Errorf("leaderboard: %w", err)
	}
	e.hub.Broadcast(Event{Type: EventLeaderboard, Payload: LeaderboardPayload{Results: entries, QuizName: quizName}})
	return nil
}

// Leaderboard recomputes the current standings on demand. Returns an
// empty board when no quiz is active.
func (e *Engine) Leaderboard(ctx context.Context) (LeaderboardPayload, error) {
	e.mu.Lock()
	active := e.status == domain.StatusActive
	quizID := e.quizID
	quizName := e.quizName
	e.mu.Unlock()

	if !active {
		return LeaderboardPayload{Results: []domain.LeaderboardEntry{}}, nil
	}
	entries, err := e.store.Leaderboard(ctx, quizID, leaderboardTop)
	if err != nil {
		return LeaderboardPayload{}, fmt.Errorf("leaderboard: %w", err)
	}
	return LeaderboardPayload{Results: entries, QuizName: quizName}, nil
}

// Snapshot returns a consistent read of the live session.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Status:      e.status,
		HostID:      e.hostID,
		QuizID:      e.quizID,
		QuizName:    e.quizName,
		JoinCode:    e.joinCode,
		PlayerCount: len(e.players),
	}
}
