package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := withRetry(ctx, "user.GetByID", func() error {
		doc, err := r.client.Collection("users").Doc(id).Get(ctx)
		if err != nil {
			return err
		}
		if err := doc.DataTo(&user); err != nil {
			return err
		}
		user.ID = doc.Ref.ID
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.UserNotFound(id, err)
		}
		return nil, errors.Unavailable("Failed to get user", err)
	}
	return &user, nil
}

func (r *firestoreUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	if len(ids) == 0 {
		return map[string]*entity.User{}, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.client.Collection("users").Doc(id))
	}

	var docs []*firestore.DocumentSnapshot
	err := withRetry(ctx, "user.GetByIDs", func() error {
		var err error
		docs, err = r.client.GetAll(ctx, refs)
		return err
	})
	if err != nil {
		return nil, errors.Unavailable("Failed to batch get users", err)
	}

	result := make(map[string]*entity.User, len(docs))
	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			continue
		}
		user.ID = doc.Ref.ID
		result[user.ID] = &user
	}
	return result, nil
}
