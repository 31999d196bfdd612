package models

import (
	"time"

	"github.com/google/uuid"
)

type FeatureRequestStatus int

const (
	StatusNone FeatureRequestStatus = iota
	StatusPending
	StatusAccepted
	StatusRejected
)

type FeatureRequest struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string               `gorm:"not null" json:"title"` // sanitized markup, may exceed the input limit
	Description string               `gorm:"not null" json:"description"`
	CreatedAt   time.Time            `json:"created"`
	UpdatedAt   time.Time            `json:"updated"`
	CreatorID   uint64               `gorm:"not null;index" json:"creatorId,string"`
	Creator     User                 `gorm:"foreignKey:CreatorID" json:"-"`
	Upvotes     int                  `gorm:"not null;default:0" json:"upvotes"`
	Downvotes   int                  `gorm:"not null;default:0" json:"downvotes"`
	Status      FeatureRequestStatus `gorm:"not null;default:0" json:"status"`
	Weight      int                  `gorm:"not null;default:0" json:"weight"`
}

// Score is the net vote count used as the ranking tie-break.
func (r FeatureRequest) Score() int {
	return r.Upvotes - r.Downvotes
}

type CreateFeatureRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RankedRequest is one entry of the board as seen by a particular viewer.
type RankedRequest struct {
	Request  FeatureRequest `json:"request"`
	Creator  User           `json:"creator"`
	UserVote VoteValue      `json:"userVote"`
}
