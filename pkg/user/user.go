// Package user manages the accounts deployments are provisioned for.
package user

import "time"

// User is an account row.
type User struct {
	ID        int64      `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	IsAdmin   bool       `db:"is_admin" json:"is_admin"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CreateRequest is the JSON body for POST /api/v1/users.
type CreateRequest struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}
