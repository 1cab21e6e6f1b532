package datastore

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// UserProfile is an application user.
type UserProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"size:100;not null" json:"-"` // bcrypt hash
	Fullname  string    `gorm:"size:200" json:"fullname"`
	Email     string    `gorm:"size:254" json:"email"`
	CreatedAt time.Time `json:"created_datetime"`
	UpdatedAt time.Time `json:"modified_datetime"`
}

// CheckPassword reports whether password matches the stored hash.
func (u *UserProfile) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// Fish is one species in the catalog.
type Fish struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LocalName      string    `gorm:"size:100;index;not null" json:"local_name" yaml:"local_name"`
	EnglishName    string    `gorm:"size:100" json:"english_name" yaml:"english_name"`
	ScientificName string    `gorm:"size:200" json:"scientific_name" yaml:"scientific_name"`
	FishDesc       string    `gorm:"type:text" json:"fish_desc" yaml:"fish_desc"`
	SafetyDesc     string    `gorm:"type:text" json:"safety_desc" yaml:"safety_desc"`
	CreatedAt      time.Time `json:"created_datetime" yaml:"-"`
}

// TableName keeps the plural table name stable across dialects.
func (Fish) TableName() string { return "fish" }

// FishCollection is a capture a user saved.
type FishCollection struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserID           uint        `gorm:"index;not null" json:"user_id"`
	User             UserProfile `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	FishID           uint        `gorm:"index;not null" json:"fish_id"`
	Fish             Fish        `gorm:"constraint:OnDelete:CASCADE" json:"fish"`
	CapturedLocation string      `gorm:"size:200" json:"captured_location"`
	ImagePath        string      `gorm:"size:200" json:"image_path"`
	ConfidenceScore  *float64    `json:"confidence_score"`
	CreatedAt        time.Time   `gorm:"index" json:"created_datetime"`
	UpdatedAt        time.Time   `json:"modified_datetime"`
}

// NewUser holds the fields needed to register a user.
type NewUser struct {
	Username string
	Password string
	Fullname string
	Email    string
}

// NewCollection holds the fields needed to record a capture.
type NewCollection struct {
	Username         string
	LocalName        string
	CapturedLocation string
	ImagePath        string
	ConfidenceScore  *float64
}

// CollectionUpdate lists the fields an owner may change. Nil fields are left alone.
type CollectionUpdate struct {
	CapturedLocation *string
	LocalName        *string
}
