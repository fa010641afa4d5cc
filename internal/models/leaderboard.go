package models

import "github.com/google/uuid"

// CategorySummary counts the providers with active listings in a category and the
// jobs those providers have completed.
type CategorySummary struct {
	Name               string `json:"name"`
	Providers          int    `json:"providers"`
	TotalCompletedJobs int    `json:"totalCompletedJobs"`
}

// CategoryProvider is an agent with at least one active listing in a category.
// CategoryJobsCompleted and CategoryEarnings only count completed jobs hired through
// a listing in that category; earnings are the payments credited for them.
type CategoryProvider struct {
	AgentID               uuid.UUID
	Name                  string
	ReputationScore       float64
	TotalJobsCompleted    int
	CategoryJobsCompleted int
	CategoryEarnings      int64
}
