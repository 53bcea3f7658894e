package domain

import "errors"

var (
	// ErrQuizConflict is returned when a start is attempted while any quiz
	// is active anywhere on the server.
	ErrQuizConflict = errors.New("another quiz is already active on the server")
	// ErrForbidden is returned when the caller is not the active host.
	ErrForbidden = errors.New("no active quiz for this host")
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions rejects starting a quiz with an empty question list.
	ErrNoQuestions = errors.New("this quiz has no questions")
	// ErrQuizNotActive is returned for player actions while no quiz is live.
	ErrQuizNotActive = errors.New("no quiz is active, please wait for the host")
	// ErrInvalidJoinCode rejects a join with a code that does not match.
	ErrInvalidJoinCode = errors.New("invalid join code")
	// ErrNameTaken rejects a join with a name already in use, ignoring case.
	ErrNameTaken = errors.New("this name is already taken for this quiz")
	// ErrValidation covers malformed payloads such as an empty player name.
	ErrValidation = errors.New("invalid request")
	// ErrHostNotFound indicates the host account does not exist.
	ErrHostNotFound = errors.New("host not found")
)
