package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type WasteType string

const (
	WastePlastic WasteType = "plastic"
	WasteOrganic WasteType = "organic"
	WasteTextile WasteType = "textile"
	WasteEWaste  WasteType = "e-waste"
	WasteOther   WasteType = "other"
)

// legacyEWaste is the spelling used by older backend builds.
const legacyEWaste = "ewaste"

// WasteTypes lists all canonical waste types in display order.
var WasteTypes = []WasteType{WastePlastic, WasteOrganic, WasteTextile, WasteEWaste, WasteOther}

func (w WasteType) Valid() bool {
	switch w {
	case WastePlastic, WasteOrganic, WasteTextile, WasteEWaste, WasteOther:
		return true
	default:
		return false
	}
}

// ParseWasteType parses user input. Only canonical spellings are accepted.
func ParseWasteType(s string) (WasteType, error) {
	w := WasteType(strings.ToLower(strings.TrimSpace(s)))
	if !w.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWasteType, s)
	}
	return w, nil
}

// MigrateLegacyWasteType maps values read from the backend or from persisted
// state to the canonical enum, rewriting the legacy "ewaste" spelling.
func MigrateLegacyWasteType(s string) (WasteType, error) {
	if s == legacyEWaste {
		return WasteEWaste, nil
	}
	return ParseWasteType(s)
}

type WasteSubmission struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Type           WasteType `json:"wasteType"`
	WeightKg       float64   `json:"weightKg"`
	SubmissionDate time.Time `json:"submissionDate"`
	Points         float64   `json:"points"`
}

// ValidateWeight rejects non-positive and non-finite weights.
func ValidateWeight(kg float64) error {
	if math.IsNaN(kg) || math.IsInf(kg, 0) || kg <= 0 {
		return ErrInvalidWeight
	}
	return nil
}

// SubmissionDateLayout is the calendar-date format exchanged with the backend.
const SubmissionDateLayout = "2006-01-02"
