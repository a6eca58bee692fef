// Package loaders batches the per-bed and per-admission lookups made by the
// reconciliation sweep into a handful of repository queries.
package loaders

import (
	"context"
	"fmt"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

const batchCapacity = 100

// Loaders contains the dataloaders used by a single sweep. They cache for
// their whole lifetime, so build a fresh set per sweep.
type Loaders struct {
	AdmissionLoader *dataloader.Loader[string, *entities.Admission]
	RoomBedsLoader  *dataloader.Loader[string, []*entities.Bed]
}

// NewLoaders creates a new instance of Loaders
func NewLoaders(admissionRepo repositories.AdmissionRepository, bedRepo repositories.BedRepository) *Loaders {
	return &Loaders{
		AdmissionLoader: dataloader.NewBatchedLoader(
			func(ctx context.Context, keys []string) []*dataloader.Result[*entities.Admission] {
				results := make([]*dataloader.Result[*entities.Admission], len(keys))
				admissions, err := admissionRepo.GetByIDs(ctx, keys)

				byID := make(map[string]*entities.Admission, len(admissions))
				if err == nil {
					for _, a := range admissions {
						byID[a.ID] = a
					}
				}

				for i, key := range keys {
					if err != nil {
						results[i] = &dataloader.Result[*entities.Admission]{Error: err}
					} else if a, ok := byID[key]; ok {
						results[i] = &dataloader.Result[*entities.Admission]{Data: a}
					} else {
						results[i] = &dataloader.Result[*entities.Admission]{
							Error: apperrors.NewNotFoundError(fmt.Sprintf("admission with id %s not found", key)),
						}
					}
				}
				return results
			},
			dataloader.WithBatchCapacity[string, *entities.Admission](batchCapacity),
		),
		RoomBedsLoader: dataloader.NewBatchedLoader(
			func(ctx context.Context, keys []string) []*dataloader.Result[[]*entities.Bed] {
				results := make([]*dataloader.Result[[]*entities.Bed], len(keys))
				byRoom, err := bedRepo.ListByRoomIDs(ctx, keys)

				for i, key := range keys {
					if err != nil {
						results[i] = &dataloader.Result[[]*entities.Bed]{Error: err}
						continue
					}
					// a room without beds is a valid empty result
					results[i] = &dataloader.Result[[]*entities.Bed]{Data: byRoom[key]}
				}
				return results
			},
			dataloader.WithBatchCapacity[string, []*entities.Bed](batchCapacity),
		),
	}
}

// Admissions resolves ids in one batch. The returned map omits ids that
// could not be loaded; the error is the first non-not-found failure.
func (l *Loaders) Admissions(ctx context.Context, ids []string) (map[string]*entities.Admission, error) {
	found := make(map[string]*entities.Admission, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	data, errs := l.AdmissionLoader.LoadMany(ctx, ids)()
	for i, id := range ids {
		if i < len(errs) && errs[i] != nil {
			if apperrors.IsNotFound(errs[i]) {
				continue
			}
			return nil, errs[i]
		}
		if i < len(data) && data[i] != nil {
			found[id] = data[i]
		}
	}
	return found, nil
}

// RoomBeds resolves the beds of each room in one batch
func (l *Loaders) RoomBeds(ctx context.Context, roomIDs []string) (map[string][]*entities.Bed, error) {
	result := make(map[string][]*entities.Bed, len(roomIDs))
	if len(roomIDs) == 0 {
		return result, nil
	}

	data, errs := l.RoomBedsLoader.LoadMany(ctx, roomIDs)()
	for i, id := range roomIDs {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if i < len(data) {
			result[id] = data[i]
		}
	}
	return result, nil
}
