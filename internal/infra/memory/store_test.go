package memory

import (
	"context"
	"testing"

	"github.com/Ebaad-esr/QuizMaster/internal/domain"
)

func seedQuiz(t *testing.T, store *Store) (hostID, quizID int64) {
	t.Helper()
	ctx := context.Background()
	hostID, err := store.CreateHost(ctx, "host@example.com", "hash")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	quizID, err = store.CreateQuiz(ctx, hostID, "Quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return hostID, quizID
}

func TestUpsertResultReplacesByQuizAndName(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, quizID := seedQuiz(t, store)

	one := 1
	if err := store.UpsertResult(ctx, domain.Result{QuizID: quizID, Name: "Alice", Score: 10, FinishTime: 1000, Answers: domain.AnswerMap{1: &one}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertResult(ctx, domain.Result{QuizID: quizID, Name: "Alice", Score: 7, FinishTime: 2000, Answers: domain.AnswerMap{1: &one, 2: nil}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := store.QuizResults(ctx, quizID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected single row per (quiz, name), got %d", len(results))
	}
	if results[0].Score != 7 || results[0].FinishTime != 2000 || len(results[0].Answers) != 2 {
		t.Fatalf("expected latest state, got %+v", results[0])
	}
}

func TestLeaderboardOrdersByScoreThenEarliestFinish(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, quizID := seedQuiz(t, store)

	rows := []domain.Result{
		{QuizID: quizID, Name: "A", Score: 100, FinishTime: 5},
		{QuizID: quizID, Name: "B", Score: 100, FinishTime: 3},
		{QuizID: quizID, Name: "C", Score: 90, FinishTime: 1},
	}
	for _, r := range rows {
		if err := store.UpsertResult(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	entries, err := store.Leaderboard(ctx, quizID, 20)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"B", "A", "C"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("expected order %v, got %+v", want, entries)
		}
	}
}

func TestLeaderboardHonorsLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, quizID := seedQuiz(t, store)

	for i := 0; i < 5; i++ {
		r := domain.Result{QuizID: quizID, Name: string(rune('a' + i)), Score: i, FinishTime: int64(i)}
		if err := store.UpsertResult(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	entries, err := store.Leaderboard(ctx, quizID, 3)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 3 || entries[0].Score != 4 {
		t.Fatalf("expected top 3 by score, got %+v", entries)
	}
}

func TestClearResults(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, quizID := seedQuiz(t, store)

	if err := store.UpsertResult(ctx, domain.Result{QuizID: quizID, Name: "Alice", Score: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.ClearResults(ctx, quizID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, _ := store.Leaderboard(ctx, quizID, 20)
	if len(entries) != 0 {
		t.Fatalf("expected empty board after clear, got %+v", entries)
	}
}

func TestResetHostQuizzesClearsCodes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	hostID, quizID := seedQuiz(t, store)

	if err := store.SetQuizStatus(ctx, quizID, domain.StatusActive, "AB12CD"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := store.ResetHostQuizzes(ctx, hostID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	quiz, err := store.GetQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Status != domain.StatusWaiting || quiz.JoinCode != "" {
		t.Fatalf("expected waiting with no code, got %+v", quiz)
	}
}

func TestActiveQuestionsOrderedByID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, quizID := seedQuiz(t, store)

	for _, text := range []string{"first", "second", "third"} {
		if _, err := store.AddQuestion(ctx, domain.Question{QuizID: quizID, Text: text, Options: []string{"a", "b"}}); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	questions, err := store.ActiveQuestions(ctx, quizID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 3 || questions[0].Text != "first" || questions[2].Text != "third" {
		t.Fatalf("expected creation order, got %+v", questions)
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	hostID, quizID := seedQuiz(t, store)

	if _, err := store.AddQuestion(ctx, domain.Question{QuizID: quizID, Text: "q", Options: []string{"a", "b"}}); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if err := store.UpsertResult(ctx, domain.Result{QuizID: quizID, Name: "Alice", Score: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.DeleteQuiz(ctx, hostID, quizID); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if _, err := store.GetQuiz(ctx, quizID); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz gone, got %v", err)
	}
	questions, _ := store.ActiveQuestions(ctx, quizID)
	if len(questions) != 0 {
		t.Fatalf("expected cascaded question delete, got %+v", questions)
	}
	results, _ := store.QuizResults(ctx, quizID)
	if len(results) != 0 {
		t.Fatalf("expected cascaded result delete, got %+v", results)
	}
}

func TestCreateQuizRejectsDuplicateNamePerHost(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	hostID, _ := seedQuiz(t, store)

	if _, err := store.CreateQuiz(ctx, hostID, "Quiz"); err == nil {
		t.Fatalf("expected duplicate name rejection")
	}
}
