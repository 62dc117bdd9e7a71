package users

import (
	"context"

	"github.com/dmitrijs2005/authgateway/internal/server/models"
)

// Repository is the credential store for user accounts.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
