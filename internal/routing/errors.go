package routing

import "errors"

var (
	// ErrNoMatchingRule indicates no active rule matched the idea. With a
	// well-formed rule set this is unreachable: the catch-all rule at
	// lowest priority matches everything. It is surfaced explicitly
	// rather than silently defaulting to a destination.
	ErrNoMatchingRule = errors.New("no routing rule matched")

	// ErrNoTierMatch indicates no active tier threshold band contains the
	// computed score. Thresholds are validated for exhaustiveness at
	// setup; the scorer never silently defaults to a tier.
	ErrNoTierMatch = errors.New("no tier threshold contains score")

	// ErrNoPublication indicates a rule destination has no active
	// publication configured for it.
	ErrNoPublication = errors.New("no publication configured for destination")

	// ErrNoRubrics indicates scoring was requested for a publication with
	// no active non-modifier rubrics.
	ErrNoRubrics = errors.New("no active rubrics for publication")

	// ErrInvalidTransition indicates a status change that the pipeline
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClaimExhausted indicates repeated slot-claim conflicts; the
	// operation as a whole may be retried by the caller.
	ErrClaimExhausted = errors.New("slot claim retries exhausted")
)
