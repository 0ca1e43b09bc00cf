package models

import (
	"time"
)

// User is an account allowed to call the protected API.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Username       string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	HashedPassword []byte    `gorm:"not null" json:"-"`
}

func (User) TableName() string { return "users" }
