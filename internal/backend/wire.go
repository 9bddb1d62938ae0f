package backend

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/wastepoints/internal/domain"
)

// number decodes JSON numbers and the quoted decimals Django REST framework
// emits for DecimalField.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", data, err)
	}
	*n = number(f)
	return nil
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type profileDTO struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	TotalPoints number `json:"total_points"`
	TotalWeight number `json:"total_weight"`
	Progress    number `json:"progress"`
	DateJoined  string `json:"date_joined"`
}

func (p profileDTO) toDomain() (domain.UserProfile, error) {
	profile := domain.UserProfile{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		TotalPoints: max(float64(p.TotalPoints), 0),
		TotalWeight: max(float64(p.TotalWeight), 0),
		Progress:    float64(p.Progress),
	}
	if p.DateJoined != "" {
		t, err := parseTimestamp(p.DateJoined)
		if err != nil {
			return domain.UserProfile{}, fmt.Errorf("invalid date_joined: %w", err)
		}
		profile.DateJoined = t
	}
	return profile, nil
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type submissionRequest struct {
	User           int64   `json:"user"`
	WasteType      string  `json:"waste_type"`
	WeightKg       float64 `json:"weight_kg"`
	SubmissionDate string  `json:"submission_date"`
}

type submissionDTO struct {
	ID             int64  `json:"id"`
	User           int64  `json:"user"`
	WasteType      string `json:"waste_type"`
	WeightKg       number `json:"weight_kg"`
	SubmissionDate string `json:"submission_date"`
	Date           string `json:"date"`
	Points         number `json:"points"`
}

func (s submissionDTO) toDomain() (domain.WasteSubmission, error) {
	wasteType, err := domain.MigrateLegacyWasteType(s.WasteType)
	if err != nil {
		return domain.WasteSubmission{}, err
	}

	raw := s.SubmissionDate
	if raw == "" {
		raw = s.Date
	}
	var date time.Time
	if raw != "" {
		if date, err = parseTimestamp(raw); err != nil {
			return domain.WasteSubmission{}, fmt.Errorf("invalid submission date: %w", err)
		}
	}

	return domain.WasteSubmission{
		ID:             s.ID,
		UserID:         s.User,
		Type:           wasteType,
		WeightKg:       float64(s.WeightKg),
		SubmissionDate: date,
		Points:         float64(s.Points),
	}, nil
}

type dashboardDTO struct {
	TotalPoints number `json:"total_points"`
	TotalWeight number `json:"total_weight"`
	Progress    number `json:"progress"`
}

func (d dashboardDTO) toDomain() domain.Stats {
	return domain.Stats{
		TotalPoints: max(float64(d.TotalPoints), 0),
		TotalWeight: max(float64(d.TotalWeight), 0),
		Progress:    float64(d.Progress),
	}
}

// leaderboardDTO accepts both the ranked camelCase payload and the older
// {username, points} rows, which carry neither id nor rank.
type leaderboardDTO struct {
	UserID      int64   `json:"userId"`
	Name        string  `json:"name"`
	Username    string  `json:"username"`
	TotalPoints *number `json:"totalPoints"`
	Points      number  `json:"points"`
	TotalWeight number  `json:"totalWeight"`
	Rank        int     `json:"rank"`
}

func (e leaderboardDTO) toDomain(position int) domain.LeaderboardEntry {
	entry := domain.LeaderboardEntry{
		UserID:      e.UserID,
		Name:        e.Name,
		TotalPoints: float64(e.Points),
		TotalWeight: float64(e.TotalWeight),
		Rank:        e.Rank,
	}
	if entry.Name == "" {
		entry.Name = e.Username
	}
	if e.TotalPoints != nil {
		entry.TotalPoints = float64(*e.TotalPoints)
	}
	if entry.Rank <= 0 {
		entry.Rank = position + 1
	}
	return entry
}

func sortRecentFirst(submissions []domain.WasteSubmission) {
	slices.SortStableFunc(submissions, func(a, b domain.WasteSubmission) int {
		if c := b.SubmissionDate.Compare(a.SubmissionDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	domain.SubmissionDateLayout,
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

var _ json.Unmarshaler = (*number)(nil)
