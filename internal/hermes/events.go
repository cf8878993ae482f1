package hermes

import (
	"strconv"
	"time"
)

// JobEvent is published on every job lifecycle transition.
type JobEvent struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"owner_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ProposalEvent is published on every proposal lifecycle transition.
type ProposalEvent struct {
	Event        string    `json:"event"`
	ProposalID   string    `json:"proposal_id"`
	JobID        string    `json:"job_id"`
	FreelancerID string    `json:"freelancer_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Version      int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`

	// Set on proposal.accepted only.
	RejectedSiblings []string `json:"rejected_siblings,omitempty"`
	RateChanged      bool     `json:"rate_changed,omitempty"`
}

// MsgID keys broker-side dedupe. A job emits each event at a given version
// once, so a republished transition collapses onto the first copy.
func (e JobEvent) MsgID() string { return e.Event + ":" + e.JobID + ":" + strconv.Itoa(e.Version) }

func (e ProposalEvent) MsgID() string {
	return e.Event + ":" + e.ProposalID + ":" + strconv.Itoa(e.Version)
}

type InvitationEvent struct {
	Event        string    `json:"event"`
	InvitationID string    `json:"invitation_id"`
	JobID        string    `json:"job_id"`
	FreelancerID string    `json:"freelancer_id"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// An invitation enters each status at most once.
func (e InvitationEvent) MsgID() string { return e.Event + ":" + e.InvitationID + ":" + e.Status }

// ProfileUpdatedEvent is consumed from the profile service.
type ProfileUpdatedEvent struct {
	ProfileID string `json:"profile_id"`
	Kind      string `json:"kind"` // freelancer or client
	Version   int    `json:"version"`
}
