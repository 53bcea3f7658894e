package domain

// Status is the lifecycle state of a quiz.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	// StatusFinished is transient: it only exists while final scores are
	// being delivered at the end of a session.
	StatusFinished Status = "finished"
)

// CanTransitionTo reports whether moving to next is a legal lifecycle move.
// The only legal cycle is waiting -> active -> finished -> waiting, with
// active -> waiting allowed as the direct end-quiz shortcut.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive
	case StatusActive:
		return next == StatusFinished || next == StatusWaiting
	case StatusFinished:
		return next == StatusWaiting
	}
	return false
}

// Host owns quizzes and may run at most one of them at a time.
type Host struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Quiz is a named set of questions owned by a host. JoinCode is only
// present while the quiz is active.
type Quiz struct {
	ID       int64  `json:"id"`
	HostID   int64  `json:"hostId"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
	JoinCode string `json:"joinCode,omitempty"`
}

// Question models an MCQ question. The option list order is fixed and
// CorrectOptionIndex points into it. Scores are per question: Score is
// awarded on a correct answer, NegativeScore is deducted on a wrong
// answer or a timeout.
type Question struct {
	ID                 int64    `json:"id"`
	QuizID             int64    `json:"quizId"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	TimeLimit          int      `json:"timeLimit"`
	Score              int      `json:"score"`
	NegativeScore      int      `json:"negativeScore"`
	ImageURL           string   `json:"imageUrl,omitempty"`
}

// AnswerMap records a player's chosen option index per question id.
// A nil value is an explicit "no answer" (client-side timeout).
type AnswerMap map[int64]*int

// Clone returns an independent copy safe to hand to a store.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for id, idx := range m {
		out[id] = idx
	}
	return out
}

// Player is the transient per-connection record of a participant in the
// live session. It exists only while the connection is open.
type Player struct {
	Name   string
	Branch string
	Year   string
	Score  int
	// Answers has at most one entry per question id; the first recorded
	// answer wins and later submissions for the same question are ignored.
	Answers AnswerMap
	// QuestionIndex is a monotonic cursor into the frozen question list.
	// -1 means no question requested yet.
	QuestionIndex int
}

// Result is the durable record of one player's participation in a quiz,
// keyed uniquely by (quiz id, name). It is written through on every
// scored answer and survives disconnects and restarts.
type Result struct {
	QuizID     int64     `json:"quizId"`
	Name       string    `json:"name"`
	Branch     string    `json:"branch"`
	Year       string    `json:"year"`
	Score      int       `json:"score"`
	FinishTime int64     `json:"finishTime"` // unix milliseconds of the last update
	Answers    AnswerMap `json:"answers"`
}

// LeaderboardEntry is one row of the ranked standings.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}
