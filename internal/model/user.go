package model

import "time"

// User represents a registered account.
//
// Email is stored lower-cased and is unique. PasswordHash is a bcrypt hash and
// is never serialised. LastAffirmationDate is a calendar date in the service
// time zone ("2006-01-02"), empty until the first assignment.
type User struct {
	ID                  string     `json:"id"                  db:"id"`
	Email               string     `json:"email"               db:"email"`
	PasswordHash        string     `json:"-"                   db:"password_hash"`
	Name                string     `json:"name,omitempty"      db:"name"`
	Goals               StringList `json:"goals"               db:"goals"`
	CurrentStreak       int        `json:"currentStreak"       db:"current_streak"`
	LastAffirmationDate string     `json:"lastAffirmationDate" db:"last_affirmation_date"`
	IsAdmin             bool       `json:"isAdmin"             db:"is_admin"`
	CreatedAt           time.Time  `json:"createdAt"           db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt"           db:"updated_at"`
}

// HasGoal reports whether c is one of the user's goal categories.
func (u *User) HasGoal(c Category) bool {
	return u.Goals.Contains(string(c))
}
