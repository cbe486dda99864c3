package models

import "time"

// User represents an identity owning a verified phone number.
type User struct {
	ID           string     `bson:"_id" json:"id"`
	PhoneNumber  string     `bson:"phone_number" json:"phoneNumber"`
	Name         string     `bson:"name" json:"name"`
	Status       string     `bson:"status,omitempty" json:"status,omitempty"`
	Avatar       string     `bson:"avatar,omitempty" json:"avatar,omitempty"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	IsOnline     bool       `bson:"is_online" json:"isOnline"`
	LastSeen     *time.Time `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updatedAt"`
}
