package main

import (
	"net/http"
	"os"
	"strings"
	"testing"

	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  *apperrors.Error
		want string
	}{
		{"nil", nil, "command failed"},
		{"network", apperrors.NetworkFailure("timeout", nil), "cannot reach the rewards service, check your connection"},
		{"authorization", apperrors.AuthorizationFailure("expired"), "not signed in, run `wastepoints login`"},
		{"server", apperrors.ServerFailure(http.StatusBadGateway, "bad gateway"), "the rewards service failed, try again later"},
		{"unknown", apperrors.UnknownFailure("malformed response", nil), "malformed response"},
		{
			"validation fields",
			apperrors.ValidationFailure(http.StatusBadRequest, map[string][]string{
				"username":            {"A user with that username already exists."},
				apperrors.NonFieldKey: {"Try again."},
			}),
			"Try again.; username: A user with that username already exists.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.err))
		})
	}
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(apperrors.Success()))
	assert.EqualError(t, resultError(apperrors.Failed(apperrors.FieldFailure("weight_kg", "must be positive"))), "weight_kg: must be positive")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "12", formatNumber(12))
	assert.Equal(t, "2.5", formatNumber(2.5))
	assert.Equal(t, "0.33", formatNumber(1.0/3))
	assert.Equal(t, "0", formatNumber(0))
}

func TestResolvePassword(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(passwordEnv, "from-env")
		pw, err := resolvePassword("from-flag", strings.NewReader("from-stdin\n"))
		require.NoError(t, err)
		assert.Equal(t, "from-flag", pw)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(passwordEnv, "from-env")
		pw, err := resolvePassword("", strings.NewReader("from-stdin\n"))
		require.NoError(t, err)
		assert.Equal(t, "from-env", pw)
	})

	t.Run("stdin without trailing newline", func(t *testing.T) {
		t.Setenv(passwordEnv, "")
		require.NoError(t, os.Unsetenv(passwordEnv))
		pw, err := resolvePassword("", strings.NewReader("from-stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from-stdin", pw)
	})
}

func TestWasteTypeList(t *testing.T) {
	assert.Equal(t, "plastic, organic, textile, e-waste, other", wasteTypeList())
}
