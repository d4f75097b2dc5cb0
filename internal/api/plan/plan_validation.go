package plan

import (
	"errors"
	"slices"
	"time"

	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var (
	ErrMissingParameters = errors.New("missing required parameters")
	ErrInvalidParameters = errors.New("invalid required parameters")
)

var TripTypes = []string{
	"luxury", "romantic", "general", "adventure", "family", "solo", "business",
	"backpacking", "cultural", "food", "beach", "nature", "sports", "budget",
}

// Limits bounds what a plan request may ask for and when a pending plan is
// considered abandoned.
type Limits struct {
	// MaxDays caps the converted duration. Zero means no cap.
	MaxDays int
	// Durations, when set, is the exact list of accepted duration labels.
	Durations []string
	// StaleAfter is how long a pending plan may go without progress before an
	// equivalent request resubmits it. Zero disables resubmission.
	StaleAfter time.Duration
}

// ValidateRequest checks the required fields, the trip type and that the
// duration is an accepted label converting to between 1 and MaxDays days.
func ValidateRequest(req types.PlanRequest, limits Limits) error {
	if req.Destination == "" || req.Duration == "" || req.TripType == "" {
		return ErrMissingParameters
	}
	if !slices.Contains(TripTypes, req.TripType) {
		return ErrInvalidParameters
	}
	if len(limits.Durations) > 0 && !slices.Contains(limits.Durations, req.Duration) {
		return ErrInvalidParameters
	}
	days := DaysOf(req.Duration)
	if days < 1 || (limits.MaxDays > 0 && days > limits.MaxDays) {
		return ErrInvalidParameters
	}
	if req.TravelersCount != nil && *req.TravelersCount < 1 {
		return ErrInvalidParameters
	}
	return nil
}
