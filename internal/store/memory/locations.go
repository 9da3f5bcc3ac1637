package memory

import (
	"context"
	"io"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
)

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Location, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.locations[id])
	}
	return result, nil
}

func (s *Store) GetLocation(ctx context.Context, locationID string) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	location, ok := s.locations[locationID]
	if !ok {
		return models.Location{}, store.ErrLocationNotFound
	}
	return location, nil
}

func (s *Store) AddLocation(location models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	location = location.Normalize()
	if _, exists := s.locations[location.LocationID]; !exists {
		s.order = append(s.order, location.LocationID)
	}
	s.locations[location.LocationID] = location
}

// LoadSeedFile reads a YAML (or JSON) list of location documents.
func (s *Store) LoadSeedFile(path string) error {
	seeds, err := store.ReadLocationSeedFile(path)
	if err != nil {
		return err
	}
	s.addSeeds(seeds)
	return nil
}

func (s *Store) LoadSeed(r io.Reader) error {
	seeds, err := store.DecodeLocationSeed(r)
	if err != nil {
		return err
	}
	s.addSeeds(seeds)
	return nil
}

func (s *Store) addSeeds(seeds []store.LocationSeed) {
	for _, seed := range seeds {
		s.AddLocation(seed.Location)
	}
}
