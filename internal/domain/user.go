package domain

import "time"

type UserProfile struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	TotalPoints float64   `json:"totalPoints"`
	TotalWeight float64   `json:"totalWeight"`
	Progress    float64   `json:"progress"`
	DateJoined  time.Time `json:"dateJoined,omitzero"`
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
// The ID is deliberately absent: it never changes once set.
type ProfilePatch struct {
	Username    *string
	Email       *string
	TotalPoints *float64
	TotalWeight *float64
	Progress    *float64
}

// Apply merges the patch into p and reports whether any field changed.
// Negative totals are clamped to zero.
func (patch ProfilePatch) Apply(p UserProfile) (UserProfile, bool) {
	next := p
	if patch.Username != nil {
		next.Username = *patch.Username
	}
	if patch.Email != nil {
		next.Email = *patch.Email
	}
	if patch.TotalPoints != nil {
		next.TotalPoints = max(*patch.TotalPoints, 0)
	}
	if patch.TotalWeight != nil {
		next.TotalWeight = max(*patch.TotalWeight, 0)
	}
	if patch.Progress != nil {
		next.Progress = *patch.Progress
	}
	return next, next != p
}

// StatsPatch builds the patch that applies backend-computed dashboard stats.
func StatsPatch(s Stats) ProfilePatch {
	return ProfilePatch{
		TotalPoints: &s.TotalPoints,
		TotalWeight: &s.TotalWeight,
		Progress:    &s.Progress,
	}
}
