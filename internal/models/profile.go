package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	DefaultProfileName = "User"
)

type Profile struct {
	UID                 string     `json:"uid"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	IsActive            bool       `json:"is_active"`
	FirstQueueCompleted bool       `json:"first_queue_completed"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin && p.IsActive
}
