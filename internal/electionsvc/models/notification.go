package models

import "time"

const NotificationWebhooks = "webhooks"

const (
	KindVote     = "vote"
	KindElection = "election"
)

// Notification records that a webhook was triggered for a model state.
type Notification struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	ElectionID   *string    `json:"election_id"`
	VoteID       *string    `json:"vote_id"`
	LastModified *time.Time `json:"last_modified"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Changed is the event published when results were replaced.
type Changed struct {
	Kind         string     `json:"kind"`
	ID           string     `json:"id"`
	Principal    string     `json:"principal"`
	LastModified *time.Time `json:"last_modified"`
}
