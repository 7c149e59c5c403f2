package domain

import "time"

// User es el principal de identidad del dashboard. Nunca se borra desde el core de auth.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name,omitempty"`
	Phone               *string    `json:"phone,omitempty"`
	EmailVerifiedAt     *time.Time `json:"email_verified_at,omitempty"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
	LastLoggedInAt      *time.Time `json:"last_logged_in_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
