package domain

// DefaultGoalPoints is the point target shown on the dashboard.
const DefaultGoalPoints = 100

type Stats struct {
	TotalPoints float64 `json:"totalPoints"`
	TotalWeight float64 `json:"totalWeight"`
	Progress    float64 `json:"progress"`
}

// ProgressToGoal returns the percentage of goal reached, clamped to [0, 100].
func ProgressToGoal(points, goal float64) float64 {
	if goal <= 0 || points <= 0 {
		return 0
	}
	return min(points/goal*100, 100)
}

// PointsToGoal returns the points still missing to reach goal, floored at zero.
func PointsToGoal(points, goal float64) float64 {
	return max(goal-points, 0)
}
