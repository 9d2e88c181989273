package domain

import "time"

// Product outcome actions
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
	ActionSkipped   = "skipped"
	ActionFailed    = "failed"
)

// RunReport summarizes one sync run
type RunReport struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Unchanged  int        `json:"unchanged"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// ProductOutcome records what a run did to one logical product
type ProductOutcome struct {
	RunID           string    `json:"runId"`
	FamilyKey       string    `json:"familyKey"`
	ProductID       int64     `json:"productId,omitempty"`
	Title           string    `json:"title"`
	Action          string    `json:"action"`
	Status          string    `json:"status,omitempty"`
	VariantsCreated int       `json:"variantsCreated"`
	VariantsUpdated int       `json:"variantsUpdated"`
	VariantsDeleted int       `json:"variantsDeleted"`
	ImagesCreated   int       `json:"imagesCreated"`
	ImagesDeleted   int       `json:"imagesDeleted"`
	Writes          int       `json:"writes"`
	Failures        int       `json:"failures"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}
