package models

import "time"

// User is a row of the users table. PasswordHash holds an encoded argon2id
// hash and never leaves the server.
type User struct {
	ID           string
	Name         string
	Email        string
	Slug         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the user representation returned by the API and captured
// in audit snapshots.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Slug:      u.Slug,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
