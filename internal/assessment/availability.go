package assessment

import "time"

// DueDateFn is the external attendance-adjusted due date collaborator. It may
// slip a content's due date per student; nil falls back to the record's final
// due adjustment, then the content's own due date.
type DueDateFn func(c *Content, rec *ContentRecord) *time.Time

// AvailabilityAt maps (now, content, record) onto the three-state attempt
// window. Content with score recording disabled is never available, so no
// scoring can occur against it.
func AvailabilityAt(now time.Time, c *Content, rec *ContentRecord, dueFn DueDateFn) Availability {
	if c == nil || !c.RecordScores {
		return NotYetAvailable
	}

	assigned := c.Assigned
	if rec != nil && rec.AssignedAdjustment != nil {
		assigned = rec.AssignedAdjustment
	}
	if assigned == nil && !c.AvailableBeforeAssigned {
		return NotYetAvailable
	}
	if assigned != nil && now.Before(*assigned) {
		return NotYetAvailable
	}

	due := adjustedDue(c, rec, dueFn)
	if due == nil || !now.After(*due) {
		return Available
	}
	return PastDue
}

func adjustedDue(c *Content, rec *ContentRecord, dueFn DueDateFn) *time.Time {
	if dueFn != nil {
		return dueFn(c, rec)
	}
	if rec != nil && rec.FinalDueAdjustment != nil {
		return rec.FinalDueAdjustment
	}
	return c.Due
}
