package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOf(t *testing.T) {
	entries := []LeaderboardEntry{
		{UserID: 1, Rank: 1},
		{UserID: 2, Rank: 2},
		{UserID: 3, Rank: 3},
	}

	rank, ok := RankOf(entries, 2)
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = RankOf(entries, 99)
	assert.False(t, ok)

	_, ok = RankOf(nil, 1)
	assert.False(t, ok, "empty leaderboard has no rank")
}

func TestProgressToGoal(t *testing.T) {
	tests := []struct {
		name   string
		points float64
		goal   float64
		want   float64
	}{
		{"clamped above goal", 150, 100, 100},
		{"exactly goal", 100, 100, 100},
		{"half way", 50, 100, 50},
		{"larger goal", 150, 300, 50},
		{"zero points", 0, 100, 0},
		{"zero goal", 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressToGoal(tt.points, tt.goal))
		})
	}
}

func TestPointsToGoal(t *testing.T) {
	assert.Equal(t, 40.0, PointsToGoal(60, 100))
	assert.Equal(t, 0.0, PointsToGoal(160, 100))
}

func TestProfilePatch_Apply(t *testing.T) {
	base := UserProfile{ID: 7, Username: "ada", TotalPoints: 12, TotalWeight: 12}

	t.Run("no-op patch reports unchanged", func(t *testing.T) {
		points := 12.0
		next, changed := ProfilePatch{TotalPoints: &points}.Apply(base)
		assert.False(t, changed)
		assert.Equal(t, base, next)
	})

	t.Run("changed totals", func(t *testing.T) {
		points, weight := 20.0, 20.0
		next, changed := ProfilePatch{TotalPoints: &points, TotalWeight: &weight}.Apply(base)
		assert.True(t, changed)
		assert.Equal(t, 20.0, next.TotalPoints)
		assert.Equal(t, int64(7), next.ID)
		assert.Equal(t, 12.0, base.TotalPoints, "original must not be mutated")
	})

	t.Run("negative totals clamp to zero", func(t *testing.T) {
		points := -3.0
		next, changed := ProfilePatch{TotalPoints: &points}.Apply(base)
		assert.True(t, changed)
		assert.Equal(t, 0.0, next.TotalPoints)
	})
}

func TestParseWasteType(t *testing.T) {
	w, err := ParseWasteType(" E-Waste ")
	require.NoError(t, err)
	assert.Equal(t, WasteEWaste, w)

	_, err = ParseWasteType("ewaste")
	assert.ErrorIs(t, err, ErrInvalidWasteType, "legacy spelling is not accepted from user input")

	_, err = ParseWasteType("glass")
	assert.ErrorIs(t, err, ErrInvalidWasteType)
}

func TestMigrateLegacyWasteType(t *testing.T) {
	w, err := MigrateLegacyWasteType("ewaste")
	require.NoError(t, err)
	assert.Equal(t, WasteEWaste, w)

	w, err = MigrateLegacyWasteType("plastic")
	require.NoError(t, err)
	assert.Equal(t, WastePlastic, w)
}

func TestValidateWeight(t *testing.T) {
	assert.NoError(t, ValidateWeight(0.5))
	for _, kg := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, ValidateWeight(kg), ErrInvalidWeight, "weight %v", kg)
	}
}

func TestSessionState_CanTransition(t *testing.T) {
	assert.True(t, StateAnonymous.CanTransition(StateLoading))
	assert.True(t, StateLoading.CanTransition(StateAuthenticated))
	assert.True(t, StateLoading.CanTransition(StateAnonymous))
	assert.True(t, StateAuthenticated.CanTransition(StateAnonymous))
	assert.True(t, StateAuthenticated.CanTransition(StateAuthenticated))

	assert.False(t, StateAuthenticated.CanTransition(StateLoading))
	assert.False(t, StateLoading.CanTransition(StateLoading))
}
