package attempt

// Decision is the outcome of evaluating whether a student may work on a
// quiz now.
type Decision struct {
	Allowed bool
	// Resume is set when the student should continue the live attempt
	// rather than start a new one.
	Resume     bool
	Reason     string
	Count      int
	Last       *Attempt
	NextNumber int
}

const (
	ReasonExhausted    = "maximum number of attempts reached"
	ReasonAwaiting     = "previous attempt is awaiting evaluation"
	ReasonSatisfactory = "quiz already completed satisfactorily"
)

// Decide applies the attempt policy to a repaired, sorted, non-deleted
// history. allowedAttempts <= 0 means unlimited.
func Decide(history []Attempt, allowedAttempts int) Decision {
	if len(history) == 0 {
		return Decision{Allowed: true, NextNumber: 1}
	}

	last := history[len(history)-1]
	d := Decision{Count: len(history), Last: &last, NextNumber: last.Number + 1}

	if allowedAttempts > 0 && d.Count >= allowedAttempts {
		d.Reason = ReasonExhausted
		return d
	}

	switch {
	case last.Status.Resubmittable():
		d.Allowed = true
	case last.IsLive():
		d.Allowed = true
		d.Resume = true
		d.NextNumber = last.Number
	case last.IsSatisfactory():
		d.Reason = ReasonSatisfactory
	default:
		d.Reason = ReasonAwaiting
	}
	return d
}
