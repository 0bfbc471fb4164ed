package judge

import "errors"

// Common errors returned by judge implementations.
var (
	// ErrNoPayloads is returned when JudgeSubjects is called with nothing to judge.
	ErrNoPayloads = errors.New("no payloads to judge")

	// ErrInvalidResponse is returned when the model response cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content via safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry.
	ErrTransientFailure = errors.New("transient error during judging")

	// ErrInvalidConfig is returned when the judge configuration is invalid.
	ErrInvalidConfig = errors.New("invalid judge configuration")

	// ErrMissingVerdict is returned when a batched response contains no
	// verdict for a subject that was submitted.
	ErrMissingVerdict = errors.New("batched response missing verdict for subject")
)
