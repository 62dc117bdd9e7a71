package httpserver

import (
	"github.com/dmitrijs2005/authgateway/internal/server/models"
)

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email,max=254"`
	Password  string  `json:"password" validate:"required,min=8,max=128"`
	FirstName string  `json:"firstname" validate:"required,max=100"`
	LastName  string  `json:"lastname" validate:"required,max=100"`
	Mobile    *string `json:"mobile,omitempty" validate:"omitempty,e164"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128,nefield=OldPassword"`
}

// UserResponse is the public view of a user. The password hash is never
// exposed.
type UserResponse struct {
	ID           string  `json:"id"`
	FirstName    string  `json:"firstname"`
	LastName     string  `json:"lastname"`
	Email        string  `json:"email"`
	Mobile       *string `json:"mobile"`
	TokenVersion int     `json:"tokenVersion"`
}

type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        UserResponse `json:"user"`
}

// RefreshResponse is the body of POST /refresh_token.
type RefreshResponse struct {
	OK          bool   `json:"ok"`
	AccessToken string `json:"accessToken"`
}

type LogoutAllResponse struct {
	OK           bool `json:"ok"`
	TokenVersion int  `json:"tokenVersion"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Mobile:       u.Mobile,
		TokenVersion: u.TokenVersion,
	}
}
