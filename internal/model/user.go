package model

import "time"

// User represents an application user record as stored in the
// `users` table. It carries the password hash and the current refresh
// token, so it must never be serialized; handlers respond with
// PublicUser instead.
//
// Fields:
//  ID             – primary key identifier of the user.
//  Username       – unique, lowercased at write time.
//  Email          – unique email address.
//  PasswordHash   – bcrypt hashed password.
//  ProfilePhoto   – public URL of the profile image, empty when none.
//  CoverPhoto     – public URL of the cover image, empty when none.
//  RefreshToken   – the single refresh token currently accepted, empty when logged out.
//  CreatedAt      – timestamp of creation.
//  UpdatedAt      – timestamp of last update.
type User struct {
    ID           uint64
    Username     string
    Email        string
    PasswordHash string
    ProfilePhoto string
    CoverPhoto   string
    RefreshToken string
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

// PublicUser is the public-safe projection of a user: no password hash and
// no refresh token.
type PublicUser struct {
    ID           uint64    `json:"id"`
    Username     string    `json:"username"`
    Email        string    `json:"email"`
    ProfilePhoto string    `json:"profile_photo"`
    CoverPhoto   string    `json:"cover_photo"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`
}

// Public strips the secret fields.
func (u User) Public() PublicUser {
    return PublicUser{
        ID:           u.ID,
        Username:     u.Username,
        Email:        u.Email,
        ProfilePhoto: u.ProfilePhoto,
        CoverPhoto:   u.CoverPhoto,
        CreatedAt:    u.CreatedAt,
        UpdatedAt:    u.UpdatedAt,
    }
}

// Column widths of users.username and users.email, in characters.
const (
    MaxUsernameLen = 64
    MaxEmailLen    = 255
)

// NewUser is the input to user creation. Password is plaintext here and is
// hashed by the repository before it reaches the database.
type NewUser struct {
    Username     string
    Email        string
    Password     string
    ProfilePhoto string
    CoverPhoto   string
}
