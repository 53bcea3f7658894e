package app_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ebaad-esr/QuizMaster/internal/app"
	"github.com/Ebaad-esr/QuizMaster/internal/domain"
	"github.com/Ebaad-esr/QuizMaster/internal/infra/memory"
)

type fixture struct {
	engine *app.Engine
	store  *memory.Store
	hub    *app.Hub
	hostID int64
	quizID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	hostID, err := store.CreateHost(ctx, "host@example.com", "hash")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	quizID, err := store.CreateQuiz(ctx, hostID, "GK Quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	questions := []domain.Question{
		{QuizID: quizID, Text: "Q one", Options: []string{"a", "b"}, CorrectOptionIndex: 1, TimeLimit: 10, Score: 10, NegativeScore: 5},
		{QuizID: quizID, Text: "Q two", Options: []string{"a", "b"}, CorrectOptionIndex: 0, TimeLimit: 10, Score: 10, NegativeScore: 3},
	}
	for _, q := range questions {
		if _, err := store.AddQuestion(ctx, q); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}

	hub := app.NewHub()
	var tick int64
	now := func() time.Time {
		tick++
		return time.UnixMilli(tick * 1000)
	}
	engine := app.NewEngineWithClock(store, store, hub, zap.NewNop(), now)
	return &fixture{engine: engine, store: store, hub: hub, hostID: hostID, quizID: quizID}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.engine.StartQuiz(context.Background(), f.hostID, f.quizID); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
}

func (f *fixture) join(t *testing.T, connID, name string) {
	t.Helper()
	code := f.engine.Snapshot().JoinCode
	if err := f.engine.Join(context.Background(), connID, app.JoinRequest{Name: name, Branch: "CSE", Year: "2", JoinCode: code}); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
}

// nextEvent reads events until one of the wanted type arrives.
func nextEvent(t *testing.T, ch <-chan app.Event, wantType string) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", wantType)
			}
			if ev.Type == wantType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", wantType)
		}
	}
}

func intPtr(v int) *int { return &v }

func TestStartQuizConflictsWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	otherHost, err := f.store.CreateHost(ctx, "other@example.com", "hash")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	otherQuiz, err := f.store.CreateQuiz(ctx, otherHost, "Other Quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if _, err := f.store.AddQuestion(ctx, domain.Question{QuizID: otherQuiz, Text: "q", Options: []string{"a", "b"}, CorrectOptionIndex: 0}); err != nil {
		t.Fatalf("add question: %v", err)
	}

	before := f.engine.Snapshot()
	if err := f.engine.StartQuiz(ctx, otherHost, otherQuiz); err != domain.ErrQuizConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if after := f.engine.Snapshot(); after != before {
		t.Fatalf("session state changed on failed start: before=%+v after=%+v", before, after)
	}
}

func TestStartQuizRejectsEmptyQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	emptyQuiz, err := f.store.CreateQuiz(ctx, f.hostID, "Empty Quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := f.engine.StartQuiz(ctx, f.hostID, emptyQuiz); err != domain.ErrNoQuestions {
		t.Fatalf("expected no-questions error, got %v", err)
	}
	if snap := f.engine.Snapshot(); snap.Status != domain.StatusWaiting {
		t.Fatalf("expected waiting state, got %s", snap.Status)
	}
}

func TestStartQuizResetsPlayersAndResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.join(t, "c1", "Alice")

	f.engine.NextQuestion("c1")
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entries, _ := f.store.Leaderboard(ctx, f.quizID, 20); len(entries) != 1 {
		t.Fatalf("expected 1 result before restart, got %d", len(entries))
	}

	if err := f.engine.EndQuiz(ctx, f.hostID); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	f.start(t)

	// The old join code is regenerated; the old results are gone and the
	// still-connected player is back to initial values.
	entries, err := f.store.Leaderboard(ctx, f.quizID, 20)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected cleared results, got %+v", entries)
	}

	// A fresh answer on question one scores from zero again.
	f.engine.NextQuestion("c1")
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit after restart: %v", err)
	}
	entries, _ = f.store.Leaderboard(ctx, f.quizID, 20)
	if len(entries) != 1 || entries[0].Score != 10 {
		t.Fatalf("expected score 10 from fresh start, got %+v", entries)
	}
}

func TestJoinRequiresActiveQuiz(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Join(context.Background(), "c1", app.JoinRequest{Name: "Alice", JoinCode: "ABC123"})
	if err != domain.ErrQuizNotActive {
		t.Fatalf("expected not-active error, got %v", err)
	}
}

func TestJoinCodeMustMatchExactly(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	code := f.engine.Snapshot().JoinCode
	lower := []byte(code)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + 'a' - 'A'
		}
	}
	err := f.engine.Join(context.Background(), "c1", app.JoinRequest{Name: "Alice", JoinCode: string(lower)})
	if code != string(lower) && err != domain.ErrInvalidJoinCode {
		t.Fatalf("expected invalid-code error for %q vs %q, got %v", lower, code, err)
	}
}

func TestJoinNameTakenIgnoresCase(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.join(t, "c1", "Alice")

	code := f.engine.Snapshot().JoinCode
	err := f.engine.Join(context.Background(), "c2", app.JoinRequest{Name: "alice", JoinCode: code})
	if err != domain.ErrNameTaken {
		t.Fatalf("expected name-taken error, got %v", err)
	}
}

func TestSubmitAnswerScoresOnceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	events, cancel := f.hub.Subscribe("c1")
	defer cancel()
	f.join(t, "c1", "Alice")
	f.engine.NextQuestion("c1")

	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ev := nextEvent(t, events, app.EventAnswerResult)
	res := ev.Payload.(app.AnswerResultPayload)
	if !res.IsCorrect || res.ScoreChange != 10 || res.Score != 10 {
		t.Fatalf("expected +10 for correct answer, got %+v", res)
	}

	// Resubmission for the same question is silently ignored.
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(0)); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	entries, _ := f.store.Leaderboard(ctx, f.quizID, 20)
	if len(entries) != 1 || entries[0].Score != 10 {
		t.Fatalf("expected single scoring event with total 10, got %+v", entries)
	}
}

func TestSubmitAnswerTimeoutDeductsPenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.join(t, "c1", "Alice")

	events, cancel := f.hub.Subscribe("c1")
	defer cancel()

	f.engine.NextQuestion("c1")
	f.engine.NextQuestion("c1") // second question: score 10, penalty 3

	if err := f.engine.SubmitAnswer(ctx, "c1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ev := nextEvent(t, events, app.EventAnswerResult)
	res := ev.Payload.(app.AnswerResultPayload)
	if res.IsCorrect || res.ScoreChange != -3 || res.Score != -3 {
		t.Fatalf("expected -3 on timeout, got %+v", res)
	}
	if res.SelectedOptionIndex != nil {
		t.Fatalf("expected nil selected index, got %v", *res.SelectedOptionIndex)
	}
}

func TestSubmitAnswerBeforeFirstQuestionIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.join(t, "c1", "Alice")

	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	entries, _ := f.store.Leaderboard(ctx, f.quizID, 20)
	if len(entries) != 0 {
		t.Fatalf("expected no scoring before a question was requested, got %+v", entries)
	}
}

func TestNextQuestionAdvancesAndFinishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	events, cancel := f.hub.Subscribe("c1")
	defer cancel()
	f.join(t, "c1", "Alice")

	f.engine.NextQuestion("c1")
	ev := nextEvent(t, events, app.EventQuestion)
	q := ev.Payload.(app.QuestionPayload)
	if q.Index != 0 || q.Question.Text != "Q one" {
		t.Fatalf("expected first question, got %+v", q)
	}

	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.engine.NextQuestion("c1")
	nextEvent(t, events, app.EventQuestion)
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Past the end of the frozen list the player is done.
	f.engine.NextQuestion("c1")
	ev = nextEvent(t, events, app.EventQuizFinished)
	fin := ev.Payload.(app.QuizFinishedPayload)
	if fin.Score != 20 {
		t.Fatalf("expected final score 20, got %d", fin.Score)
	}
}

func TestEndQuizRequiresActiveSessionAndHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events, cancel := f.hub.Subscribe("c1")
	defer cancel()

	if err := f.engine.EndQuiz(ctx, f.hostID); err != domain.ErrQuizNotActive {
		t.Fatalf("expected not-active error, got %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type == app.EventQuizFinished {
			t.Fatalf("quizFinished must not be broadcast on failed end")
		}
	default:
	}

	f.start(t)
	if err := f.engine.EndQuiz(ctx, f.hostID+99); err != domain.ErrForbidden {
		t.Fatalf("expected forbidden for non-active host, got %v", err)
	}
	if snap := f.engine.Snapshot(); snap.Status != domain.StatusActive {
		t.Fatalf("failed end must leave the session active, got %s", snap.Status)
	}
}

func TestEndQuizDeliversFinalScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	events, cancel := f.hub.Subscribe("c1")
	defer cancel()
	f.join(t, "c1", "Alice")
	f.engine.NextQuestion("c1")
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.engine.EndQuiz(ctx, f.hostID); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	ev := nextEvent(t, events, app.EventQuizFinished)
	if got := ev.Payload.(app.QuizFinishedPayload).Score; got != 10 {
		t.Fatalf("expected final score 10, got %d", got)
	}
	if snap := f.engine.Snapshot(); snap.Status != domain.StatusWaiting || snap.JoinCode != "" {
		t.Fatalf("expected idle session after end, got %+v", snap)
	}
	quiz, err := f.store.GetQuiz(ctx, f.quizID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Status != domain.StatusWaiting || quiz.JoinCode != "" {
		t.Fatalf("expected quiz persisted back to waiting, got %+v", quiz)
	}
}

func TestDisconnectForfeitsButKeepsDurableResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.join(t, "c1", "Alice")
	f.engine.NextQuestion("c1")
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.engine.Disconnect("c1")
	if snap := f.engine.Snapshot(); snap.PlayerCount != 0 {
		t.Fatalf("expected empty registry, got %d", snap.PlayerCount)
	}
	entries, _ := f.store.Leaderboard(ctx, f.quizID, 20)
	if len(entries) != 1 || entries[0].Name != "Alice" || entries[0].Score != 10 {
		t.Fatalf("expected durable result to survive disconnect, got %+v", entries)
	}

	// The name is free again for a new connection.
	f.join(t, "c2", "Alice")
}

func TestLeaderboardEmptyWhenIdle(t *testing.T) {
	f := newFixture(t)
	lb, err := f.engine.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Results) != 0 {
		t.Fatalf("expected empty board while idle, got %+v", lb.Results)
	}
}

func TestLeaderboardBroadcastAfterAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	viewer, cancel := f.hub.Subscribe("viewer")
	defer cancel()
	f.join(t, "c1", "Alice")
	f.engine.NextQuestion("c1")
	if err := f.engine.SubmitAnswer(ctx, "c1", intPtr(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev := nextEvent(t, viewer, app.EventLeaderboard)
	lb := ev.Payload.(app.LeaderboardPayload)
	if lb.QuizName != "GK Quiz" || len(lb.Results) != 1 || lb.Results[0].Score != 10 {
		t.Fatalf("unexpected leaderboard broadcast %+v", lb)
	}
}
