package domain

type LeaderboardEntry struct {
	UserID      int64   `json:"userId"`
	Name        string  `json:"name"`
	TotalPoints float64 `json:"totalPoints"`
	TotalWeight float64 `json:"totalWeight"`
	Rank        int     `json:"rank"`
}

// RankOf returns the 1-based position of userID within entries.
// Rank is positional: the server already orders entries by rank.
func RankOf(entries []LeaderboardEntry, userID int64) (int, bool) {
	for i, e := range entries {
		if e.UserID == userID {
			return i + 1, true
		}
	}
	return 0, false
}
