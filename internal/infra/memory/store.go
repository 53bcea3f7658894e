package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Ebaad-esr/QuizMaster/internal/domain"
)

// Store is an in-memory implementation of the persistence boundary,
// used in tests and when no Postgres URL is configured. It mirrors the
// Postgres store's semantics, including the (quiz id, name) upsert key.
type Store struct {
	mu        sync.RWMutex
	hosts     map[int64]domain.Host
	quizzes   map[int64]domain.Quiz
	questions map[int64]domain.Question
	results   map[int64]map[string]domain.Result // quiz id -> name -> result
	nextHost  int64
	nextQuiz  int64
	nextQuest int64
}

func NewStore() *Store {
	return &Store{
		hosts:     make(map[int64]domain.Host),
		quizzes:   make(map[int64]domain.Quiz),
		questions: make(map[int64]domain.Question),
		results:   make(map[int64]map[string]domain.Result),
	}
}

func (s *Store) GetQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) SetQuizStatus(_ context.Context, quizID int64, status domain.Status, joinCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Status = status
	quiz.JoinCode = joinCode
	s.quizzes[quizID] = quiz
	return nil
}

func (s *Store) ResetHostQuizzes(_ context.Context, hostID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, quiz := range s.quizzes {
		if quiz.HostID == hostID {
			quiz.Status = domain.StatusWaiting
			quiz.JoinCode = ""
			s.quizzes[id] = quiz
		}
	}
	return nil
}

func (s *Store) ActiveQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	// Creation order fixes the question sequence for the whole session.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.results[result.QuizID]
	if !ok {
		byName = make(map[string]domain.Result)
		s.results[result.QuizID] = byName
	}
	result.Answers = result.Answers.Clone()
	byName[result.Name] = result
	return nil
}

func (s *Store) ClearResults(_ context.Context, quizID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, quizID)
	return nil
}

func (s *Store) Leaderboard(_ context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error) {
	results, err := s.sortedResults(quizID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, limit)
	for _, r := range results {
		if len(entries) == limit {
			break
		}
		entries = append(entries, domain.LeaderboardEntry{Name: r.Name, Score: r.Score})
	}
	return entries, nil
}

// QuizResults returns all durable results for a quiz ordered like the
// leaderboard, for exports.
func (s *Store) QuizResults(_ context.Context, quizID int64) ([]domain.Result, error) {
	return s.sortedResults(quizID)
}

func (s *Store) sortedResults(quizID int64) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Result
	for _, r := range s.results[quizID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].FinishTime < out[j].FinishTime
	})
	return out, nil
}

func (s *Store) GetHostByEmail(_ context.Context, email string) (domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hosts {
		if h.Email == email {
			return h, nil
		}
	}
	return domain.Host{}, domain.ErrHostNotFound
}

func (s *Store) ListHosts(_ context.Context) ([]domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateHost(_ context.Context, email, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if h.Email == email {
			return 0, domain.ErrValidation
		}
	}
	s.nextHost++
	s.hosts[s.nextHost] = domain.Host{ID: s.nextHost, Email: email, PasswordHash: passwordHash}
	return s.nextHost, nil
}

func (s *Store) DeleteHost(_ context.Context, hostID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, hostID)
	for id, quiz := range s.quizzes {
		if quiz.HostID == hostID {
			s.deleteQuizLocked(id)
		}
	}
	return nil
}

func (s *Store) ListQuizzes(_ context.Context, hostID int64) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.HostID == hostID {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) CreateQuiz(_ context.Context, hostID int64, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, quiz := range s.quizzes {
		if quiz.HostID == hostID && quiz.Name == name {
			return 0, domain.ErrValidation
		}
	}
	s.nextQuiz++
	s.quizzes[s.nextQuiz] = domain.Quiz{ID: s.nextQuiz, HostID: hostID, Name: name, Status: domain.StatusWaiting}
	return s.nextQuiz, nil
}

func (s *Store) DeleteQuiz(_ context.Context, hostID, quizID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok || quiz.HostID != hostID {
		return domain.ErrQuizNotFound
	}
	s.deleteQuizLocked(quizID)
	return nil
}

// deleteQuizLocked cascades to questions and results, like the Postgres
// foreign keys do.
func (s *Store) deleteQuizLocked(quizID int64) {
	delete(s.quizzes, quizID)
	for id, q := range s.questions {
		if q.QuizID == quizID {
			delete(s.questions, id)
		}
	}
	delete(s.results, quizID)
}

func (s *Store) AddQuestion(_ context.Context, question domain.Question) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[question.QuizID]; !ok {
		return 0, domain.ErrQuizNotFound
	}
	s.nextQuest++
	question.ID = s.nextQuest
	s.questions[question.ID] = question
	return question.ID, nil
}

func (s *Store) DeleteQuestion(_ context.Context, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, questionID)
	return nil
}
