package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Owns reports whether the user recorded as inspector is the given caller.
func Owns(inspector uuid.NullUUID, caller uuid.UUID) bool {
	return inspector.Valid && inspector.UUID == caller
}
