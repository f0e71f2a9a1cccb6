package exam

import "errors"

var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotPublished   = errors.New("exam not published")
	ErrInvalidExam        = errors.New("invalid exam")
	ErrExamLocked         = errors.New("exam has submissions and cannot be replaced")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadySubmitted   = errors.New("submission already graded")
	ErrNotGraded          = errors.New("submission not graded yet")
)
