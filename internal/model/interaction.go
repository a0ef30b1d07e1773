package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for shown_date and
// last_affirmation_date.
const DateLayout = "2006-01-02"

// Response is the user's reaction to the affirmation of the day.
type Response string

const (
	ResponseAffirmed Response = "affirmed"
	ResponseNotForMe Response = "not_for_me"
)

// ParseResponse validates a raw response string.
func ParseResponse(s string) (Response, error) {
	switch r := Response(s); r {
	case ResponseAffirmed, ResponseNotForMe:
		return r, nil
	default:
		return "", fmt.Errorf("response must be %q or %q", ResponseAffirmed, ResponseNotForMe)
	}
}

// Interaction records one affirmation shown to one user on one calendar day.
//
// There is at most one Interaction per (UserID, ShownDate). Response is nil
// until the user reacts; once set it never changes.
type Interaction struct {
	ID            string     `json:"id"                    db:"id"`
	UserID        string     `json:"userId"                db:"user_id"`
	AffirmationID string     `json:"affirmationId"         db:"affirmation_id"`
	ShownDate     string     `json:"shownDate"             db:"shown_date"`
	Response      *Response  `json:"response"              db:"response"`
	RespondedAt   *time.Time `json:"respondedAt,omitempty" db:"responded_at"`
	CreatedAt     time.Time  `json:"createdAt"             db:"created_at"`
}

// Responded reports whether a response has been recorded.
func (i *Interaction) Responded() bool {
	return i.Response != nil
}

// Stats is the per-user engagement summary.
type Stats struct {
	TotalAffirmations int `json:"totalAffirmations"`
	Streak            int `json:"streak"`
	SuccessRate       int `json:"successRate"`
}
