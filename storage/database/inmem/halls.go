package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/studyhall/backend/core/studyhall"
)

type hallRepository struct {
	db *DB
}

func NewHallRepository(db *DB) studyhall.Repository {
	return &hallRepository{db: db}
}

func copyHall(h studyhall.StudyHall) studyhall.StudyHall {
	h.Amenities = append([]string{}, h.Amenities...)
	h.ImageURLs = append([]string{}, h.ImageURLs...)
	return h
}

func (repo *hallRepository) CreateHall(_ context.Context, hall studyhall.StudyHall) (studyhall.StudyHall, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	hall.ID = uuid.New().String()
	stored := copyHall(hall)
	repo.db.halls[hall.ID] = &stored
	return copyHall(hall), nil
}

func (repo *hallRepository) QueryHalls(_ context.Context, filter studyhall.QueryFilter) ([]studyhall.StudyHall, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	halls := make([]studyhall.StudyHall, 0)
	for _, h := range repo.db.halls {
		if filter.MerchantID != "" && h.MerchantID != filter.MerchantID {
			continue
		}
		if filter.InchargeID != "" && h.InchargeID != filter.InchargeID {
			continue
		}
		if filter.City != "" && !containsFold(h.City, filter.City) {
			continue
		}
		if filter.Search != "" && !containsFold(h.Name, filter.Search) && !containsFold(h.Address, filter.Search) {
			continue
		}
		if filter.IsActive != nil && h.IsActive != *filter.IsActive {
			continue
		}
		halls = append(halls, copyHall(*h))
	}
	sort.Slice(halls, func(i, j int) bool { return halls[i].Name < halls[j].Name })
	return halls, nil
}

func (repo *hallRepository) GetHall(_ context.Context, id string) (studyhall.StudyHall, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if h, ok := repo.db.halls[id]; ok {
		return copyHall(*h), nil
	}
	return studyhall.StudyHall{}, studyhall.ErrNotFound
}

func (repo *hallRepository) UpdateHall(_ context.Context, hall studyhall.StudyHall) (studyhall.StudyHall, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.halls[hall.ID]; !ok {
		return studyhall.StudyHall{}, studyhall.ErrNotFound
	}
	stored := copyHall(hall)
	repo.db.halls[hall.ID] = &stored
	return copyHall(hall), nil
}

func (repo *hallRepository) DeleteHall(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.halls[id]; !ok {
		return studyhall.ErrNotFound
	}
	delete(repo.db.halls, id)
	return nil
}

func (repo *hallRepository) CountHalls(_ context.Context, merchantID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, h := range repo.db.halls {
		if h.MerchantID == merchantID {
			n++
		}
	}
	return n, nil
}
