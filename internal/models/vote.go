package models

import "github.com/google/uuid"

type VoteValue int

const (
	VoteNone VoteValue = iota
	VoteUp
	VoteDown
)

func (v VoteValue) Valid() bool {
	return v == VoteNone || v == VoteUp || v == VoteDown
}

func (v VoteValue) String() string {
	switch v {
	case VoteNone:
		return "none"
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	}
	return "invalid"
}

// UserVote tracks a user's current vote on a feature request. The composite
// primary key allows at most one row per (user, request) pair.
type UserVote struct {
	UserID           uint64    `gorm:"primaryKey;autoIncrement:false" json:"userId,string"`
	FeatureRequestID uuid.UUID `gorm:"type:uuid;primaryKey" json:"featureRequestId"`
	Vote             VoteValue `gorm:"not null" json:"vote"`
}

type VoteRequest struct {
	FeatureRequestID uuid.UUID `json:"featureRequestId"`
	Vote             VoteValue `json:"vote"`
}
