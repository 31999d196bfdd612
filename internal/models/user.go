package models

// User is the identity resolved from Steam at login. It is embedded in the
// session token as-is and persisted (without OwnedApps) whenever the user
// creates a feature request.
type User struct {
	ID         uint64   `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Name       string   `gorm:"not null" json:"name"`
	Level      int      `gorm:"not null;default:0" json:"level"`
	Avatar     string   `json:"avatar"`
	PlayTime   int      `gorm:"not null;default:0" json:"playTime"` // minutes
	Weight     int      `gorm:"not null;default:0" json:"weight"`
	ProfileURL string   `json:"profileUrl"`
	OwnedApps  []uint32 `gorm:"-" json:"ownedApps"`
}
