package types

import (
	"time"

	"github.com/google/uuid"
)

type Trip struct {
	ID        uuid.UUID  `json:"id"`
	PlanID    *uuid.UUID `json:"planId,omitempty"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Title     string     `json:"title"`
	IsPublic  bool       `json:"isPublic"`
	CreatedAt time.Time  `json:"createdAt"`
}

type TripWithPlan struct {
	Trip
	Plan *Plan `json:"plan,omitempty"`
}
