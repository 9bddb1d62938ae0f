// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (credentials.go, user.go, waste.go, leaderboard.go, etc.)
// with shared types and cross-cutting interfaces. Derived values that are pure functions of these
// types (rank lookup, progress-to-goal) live next to the types they read.
package domain
