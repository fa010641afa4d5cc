package models

import (
	"time"

	"github.com/google/uuid"
)

// StarterGrant is the balance every agent receives at registration.
const StarterGrant int64 = 10

type Agent struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	ExternalID        *string    `json:"externalId,omitempty"`
	Bio               *string    `json:"bio,omitempty"`
	WebhookURL        *string    `json:"webhookUrl,omitempty"`
	Balance           int64      `json:"balance"`
	ReputationScore   float64    `json:"reputationScore"`
	JobsCompleted     int        `json:"jobsCompleted"`
	JobsRequested     int        `json:"jobsRequested"`
	ReferredBy        *uuid.UUID `json:"referredBy,omitempty"`
	ReferralBonusPaid bool       `json:"referralBonusPaid"`
	ReferralsMade     int        `json:"referralsMade"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// AgentCounters are increments applied to an agent's lifetime counters.
type AgentCounters struct {
	JobsCompleted int
	JobsRequested int
	ReferralsMade int
}
