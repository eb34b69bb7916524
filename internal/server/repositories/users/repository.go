// Package users stores accounts.
package users

import (
	"context"

	"github.com/simonexmachina/the-work/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in its id. A taken username yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
