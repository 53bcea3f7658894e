package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Ebaad-esr/QuizMaster/internal/domain"
)

const uniqueViolation = "23505"

// Store is the Postgres implementation of the persistence boundary.
// Result rows are keyed uniquely on (quiz_id, name) and written with an
// atomic upsert, so the durable record always reflects the latest scored
// answer even across reconnects.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, host_id, name, status, COALESCE(join_code, '') FROM quizzes WHERE id = $1`,
		quizID,
	).Scan(&quiz.ID, &quiz.HostID, &quiz.Name, &quiz.Status, &quiz.JoinCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) SetQuizStatus(ctx context.Context, quizID int64, status domain.Status, joinCode string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET status = $2, join_code = NULLIF($3, '') WHERE id = $1`,
		quizID, string(status), joinCode,
	)
	if err != nil {
		return fmt.Errorf("set quiz status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) ResetHostQuizzes(ctx context.Context, hostID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET status = 'waiting', join_code = NULL WHERE host_id = $1`,
		hostID,
	)
	if err != nil {
		return fmt.Errorf("reset host quizzes: %w", err)
	}
	return nil
}

func (s *Store) ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, text, options, correct_option_index, time_limit, score, negative_score, COALESCE(image_url, '')
		 FROM questions WHERE quiz_id = $1 ORDER BY id ASC`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var rawOptions []byte
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &rawOptions, &q.CorrectOptionIndex, &q.TimeLimit, &q.Score, &q.NegativeScore, &q.ImageURL); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) UpsertResult(ctx context.Context, result domain.Result) error {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (quiz_id, name, branch, year, score, finish_time, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (quiz_id, name)
		 DO UPDATE SET score = EXCLUDED.score, finish_time = EXCLUDED.finish_time, answers = EXCLUDED.answers`,
		result.QuizID, result.Name, result.Branch, result.Year, result.Score, result.FinishTime, answers,
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *Store) ClearResults(ctx context.Context, quizID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM results WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, score FROM results WHERE quiz_id = $1 ORDER BY score DESC, finish_time ASC LIMIT $2`,
		quizID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Score); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) QuizResults(ctx context.Context, quizID int64) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, COALESCE(branch, ''), COALESCE(year, ''), score, COALESCE(finish_time, 0), COALESCE(answers, '{}'::jsonb)
		 FROM results WHERE quiz_id = $1 ORDER BY score DESC, finish_time ASC`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		r := domain.Result{QuizID: quizID}
		var rawAnswers []byte
		if err := rows.Scan(&r.Name, &r.Branch, &r.Year, &r.Score, &r.FinishTime, &rawAnswers); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(rawAnswers, &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) GetHostByEmail(ctx context.Context, email string) (domain.Host, error) {
	var host domain.Host
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM hosts WHERE email = $1`,
		email,
	).Scan(&host.ID, &host.Email, &host.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Host{}, domain.ErrHostNotFound
	}
	if err != nil {
		return domain.Host{}, fmt.Errorf("get host: %w", err)
	}
	return host, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]domain.Host, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email FROM hosts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []domain.Host
	for rows.Next() {
		var h domain.Host
		if err := rows.Scan(&h.ID, &h.Email); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

func (s *Store) CreateHost(ctx context.Context, email, passwordHash string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hosts (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("email already exists: %w", domain.ErrValidation)
	}
	if err != nil {
		return 0, fmt.Errorf("create host: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteHost(ctx context.Context, hostID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM hosts WHERE id = $1`, hostID); err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	return nil
}

func (s *Store) ListQuizzes(ctx context.Context, hostID int64) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, host_id, name, status, COALESCE(join_code, '') FROM quizzes WHERE host_id = $1 ORDER BY id DESC`,
		hostID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.HostID, &q.Name, &q.Status, &q.JoinCode); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

func (s *Store) CreateQuiz(ctx context.Context, hostID int64, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quizzes (host_id, name) VALUES ($1, $2) RETURNING id`,
		hostID, name,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("a quiz with this name already exists: %w", domain.ErrValidation)
	}
	if err != nil {
		return 0, fmt.Errorf("create quiz: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, hostID, quizID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1 AND host_id = $2`, quizID, hostID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) AddQuestion(ctx context.Context, question domain.Question) (int64, error) {
	options, err := json.Marshal(question.Options)
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO questions (quiz_id, text, options, correct_option_index, time_limit, score, negative_score, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')) RETURNING id`,
		question.QuizID, question.Text, options, question.CorrectOptionIndex,
		question.TimeLimit, question.Score, question.NegativeScore, question.ImageURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add question: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
