package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

// UserRepository reads user records owned by the external account subsystem.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// GetByIDs batch-resolves users; unknown ids are absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error)
}
