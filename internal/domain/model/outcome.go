package model

import "time"

// OutcomeKind is the result of one delivery attempt.
type OutcomeKind string

const (
	OutcomeSent   OutcomeKind = "sent"   // Delivered; the notification becomes sent.
	OutcomeRetry  OutcomeKind = "retry"  // Transient failure; stays pending with a later ScheduledFor.
	OutcomeFailed OutcomeKind = "failed" // Terminal failure.
)

// Outcome describes what the scheduler observed after a claimed send attempt.
type Outcome struct {
	Kind          OutcomeKind
	ExternalID    string    // Required for OutcomeSent.
	ErrorMessage  string    // Required for OutcomeRetry and OutcomeFailed.
	At            time.Time // When the attempt finished; becomes SentAt on success.
	NextAttemptAt time.Time // Required for OutcomeRetry.
}

// SentOutcome builds a successful outcome.
func SentOutcome(externalID string, at time.Time) Outcome {
	return Outcome{Kind: OutcomeSent, ExternalID: externalID, At: at}
}

// RetryOutcome builds a retry-eligible failure outcome.
func RetryOutcome(errMsg string, at, next time.Time) Outcome {
	return Outcome{Kind: OutcomeRetry, ErrorMessage: errMsg, At: at, NextAttemptAt: next}
}

// FailedOutcome builds a terminal failure outcome.
func FailedOutcome(errMsg string, at time.Time) Outcome {
	return Outcome{Kind: OutcomeFailed, ErrorMessage: errMsg, At: at}
}
