package domain

import "errors"

var (
	// ErrNotHost is returned when a non-host participant attempts a host-only action.
	ErrNotHost = errors.New("only the host may perform this action")
	// ErrNoQuestions is returned when the game is started before content has been loaded.
	ErrNoQuestions = errors.New("no questions loaded")
	// ErrQuestionNotFound indicates a round index outside the loaded question set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrSourceFormat indicates the content payload root was not a list.
	ErrSourceFormat = errors.New("content source root must be a list")
)
