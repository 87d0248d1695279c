package repository

import (
	"context"

	"schoolnotify/internal/model"
)

// ProfileRepository reads users/{id}.
type ProfileRepository struct {
	store *DocumentStore
}

func NewProfileRepository(store *DocumentStore) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// GetProfile returns nil, nil when the user document does not exist.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*model.RecipientProfile, error) {
	var p model.RecipientProfile
	found, err := r.store.Get(ctx, model.CollectionUsers, id, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}
