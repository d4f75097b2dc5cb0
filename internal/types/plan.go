package types

import (
	"time"

	"github.com/google/uuid"
)

type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusGenerated PlanStatus = "generated"
	PlanStatusFailed    PlanStatus = "failed"
)

// PlanParameters are the caller supplied fields. Two plans with equal
// parameters are considered the same plan.
type PlanParameters struct {
	Destination          string `json:"destination"`
	Duration             string `json:"duration"`
	TripType             string `json:"tripType"`
	TripBudget           string `json:"tripBudget"`
	AccommodationBooking string `json:"accommodationBooking"`
	TravelersCount       int    `json:"travelersCount"`
	SpecialRequests      string `json:"specialRequests"`
}

type Plan struct {
	ID uuid.UUID `json:"id"`
	PlanParameters
	Content       string     `json:"content"`
	Summary       string     `json:"summary"`
	Generated     bool       `json:"generated"`
	FailureReason string     `json:"failureReason,omitempty"`
	DestinationID *uuid.UUID `json:"destinationId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Days          []PlanDay  `json:"days,omitempty"`
}

func (p *Plan) Status() PlanStatus {
	switch {
	case p.Generated:
		return PlanStatusGenerated
	case p.FailureReason != "":
		return PlanStatusFailed
	default:
		return PlanStatusPending
	}
}

type PlanDay struct {
	ID       uuid.UUID        `json:"id"`
	Day      int              `json:"day"`
	Sections []PlanDaySection `json:"sections"`
}

type PlanDaySection struct {
	ID       uuid.UUID              `json:"id"`
	Position int                    `json:"position"`
	Title    string                 `json:"title"`
	Places   []string               `json:"places"`
	Details  []PlanDaySectionDetail `json:"details"`
}

type PlanDaySectionDetail struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
	Content  string    `json:"content"`
}

// DaySection is one entry of a day plan as returned by the model:
// {"title": "Morning", "content": ["..."], "places": ["..."]}.
type DaySection struct {
	Title   string   `json:"title"`
	Content []string `json:"content"`
	Places  []string `json:"places"`
}

// PlanRequest is the body of POST /plan.
type PlanRequest struct {
	Destination          string         `json:"destination"`
	Duration             string         `json:"duration"`
	TripType             string         `json:"tripType"`
	TripBudget           string         `json:"tripBudget,omitempty"`
	AccommodationBooking string         `json:"accommodationBooking,omitempty"`
	TravelersCount       *int           `json:"travelersCount,omitempty"`
	SpecialRequests      string         `json:"specialRequests,omitempty"`
	DestinationPlace     *GeocodedPlace `json:"destinationPlace,omitempty"`
}

// Parameters applies the defaults for the optional fields.
func (r PlanRequest) Parameters() PlanParameters {
	travelers := 1
	if r.TravelersCount != nil {
		travelers = *r.TravelersCount
	}
	return PlanParameters{
		Destination:          r.Destination,
		Duration:             r.Duration,
		TripType:             r.TripType,
		TripBudget:           r.TripBudget,
		AccommodationBooking: r.AccommodationBooking,
		TravelersCount:       travelers,
		SpecialRequests:      r.SpecialRequests,
	}
}

type PlanAccepted struct {
	Response string    `json:"response"`
	PlanID   uuid.UUID `json:"planId"`
	TripID   uuid.UUID `json:"tripId"`
}

type PlanStatusResponse struct {
	Status PlanStatus `json:"status"`
	Plan   *Plan      `json:"plan"`
}

const (
	PlanEventReady  = "plan-ready"
	PlanEventFailed = "plan-failed"
)

// PlanEvent is pushed to subscribers once a plan reaches a terminal state.
type PlanEvent struct {
	Event   string      `json:"event"`
	PlanID  uuid.UUID   `json:"planId"`
	TripIDs []uuid.UUID `json:"tripIds"`
	Reason  string      `json:"reason,omitempty"`
}
