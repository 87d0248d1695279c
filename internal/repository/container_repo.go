package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
)

// ErrUndecodable marks a container document that is not a valid container.
var ErrUndecodable = errors.New("undecodable container")

// ContainerSnapshot is the decoded state of one alert container.
type ContainerSnapshot struct {
	Ref   model.ContainerRef
	Items []model.AlertItem
}

// ContainerRepository reads alert containers.
type ContainerRepository struct {
	store  *DocumentStore
	logger *zap.Logger
}

func NewContainerRepository(store *DocumentStore, logger *zap.Logger) *ContainerRepository {
	return &ContainerRepository{
		store:  store,
		logger: logger.Named("containers"),
	}
}

// Get returns the container at ref; found is false when it does not exist.
// A document that is not a container yields an error wrapping ErrUndecodable.
func (r *ContainerRepository) Get(ctx context.Context, ref model.ContainerRef) (ContainerSnapshot, bool, error) {
	var data json.RawMessage
	found, err := r.store.Get(ctx, ref.Collection, ref.ID, &data)
	if err != nil || !found {
		return ContainerSnapshot{Ref: ref}, false, err
	}
	snap, err := r.decode(ref, data)
	if err != nil {
		return ContainerSnapshot{Ref: ref}, false, err
	}
	return snap, true, nil
}

// List returns every container in collection. Undecodable documents are
// logged and skipped.
func (r *ContainerRepository) List(ctx context.Context, collection model.Collection) ([]ContainerSnapshot, error) {
	docs, err := r.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	out := make([]ContainerSnapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := r.decode(model.ContainerRef{Collection: collection, ID: d.ID}, d.Data)
		if err != nil {
			r.logger.Warn("Skipping undecodable container",
				zap.String("collection", string(collection)),
				zap.String("id", d.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// decode parses a container document item by item. Items that are not alert
// objects are logged and dropped.
func (r *ContainerRepository) decode(ref model.ContainerRef, data []byte) (ContainerSnapshot, error) {
	var doc model.ContainerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return ContainerSnapshot{Ref: ref}, fmt.Errorf("decode %s: %w: %w", ref, ErrUndecodable, err)
	}

	items := make([]model.AlertItem, 0, len(doc.Items))
	for i, raw := range doc.Items {
		var item model.AlertItem
		if err := json.Unmarshal(raw, &item); err != nil {
			r.logger.Warn("Skipping malformed alert item",
				zap.String("container", ref.String()),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		items = append(items, item)
	}
	return ContainerSnapshot{Ref: ref, Items: items}, nil
}
