package domain

import "time"

// EventCandidate is a calendar-event suggestion extracted from a message.
// Absent (nil) when no date/time signal was detected with enough confidence.
type EventCandidate struct {
	Title         string
	Start         time.Time
	End           time.Time // zero when the message gave no end time
	Location      string
	MeetingLink   string
	ConflictsWith []ConflictRef
}

// ConflictRef identifies a calendar event whose window overlaps the
// candidate's. Title is carried along for display only; EventID is the
// stable reference.
type ConflictRef struct {
	EventID string
	Title   string
}

// Interval resolves the candidate's [start, end) window, defaulting the end
// to one hour after the start when the message gave none.
func (e EventCandidate) Interval() (time.Time, time.Time) {
	end := e.End
	if end.IsZero() {
		end = e.Start.Add(time.Hour)
	}
	return e.Start, end
}

// Overlaps reports whether the candidate's window intersects the existing
// event. Touching intervals do not overlap.
func (e EventCandidate) Overlaps(other ExistingEvent) bool {
	start, end := e.Interval()
	return start.Before(other.End) && other.Start.Before(end)
}

// TimeSignal is one date/time mention found in free text by the extractor.
type TimeSignal struct {
	Start      time.Time
	End        time.Time // zero when only a point in time was matched
	Text       string
	Pos        int
	Confidence float64
}
