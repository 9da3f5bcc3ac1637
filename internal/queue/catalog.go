package queue

import (
	"context"
	"strings"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/stats"
)

const CategoryAll = "all"

type LocationFilter struct {
	Category string
	Query    string
}

type LocationList struct {
	Locations []models.Location `json:"locations"`
	// Counts is per category over the whole catalog, plus "all".
	Counts map[string]int `json:"counts"`
}

// Locations lists the catalog filtered by category and by a case-insensitive
// search over name, address and services.
func (s *Service) Locations(ctx context.Context, filter LocationFilter) (LocationList, error) {
	all, err := s.locations.ListLocations(ctx)
	if err != nil {
		return LocationList{}, err
	}
	category := strings.ToLower(strings.TrimSpace(filter.Category))
	if category != "" && category != CategoryAll {
		category = models.NormalizeCategory(category)
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	list := LocationList{
		Locations: make([]models.Location, 0, len(all)),
		Counts:    map[string]int{CategoryAll: len(all)},
	}
	for _, name := range models.Categories {
		list.Counts[name] = 0
	}
	for _, location := range all {
		list.Counts[location.Category]++
		if category != "" && category != CategoryAll && location.Category != category {
			continue
		}
		if query != "" && !matchesQuery(location, query) {
			continue
		}
		list.Locations = append(list.Locations, location)
	}
	return list, nil
}

func (s *Service) Location(ctx context.Context, locationID string) (models.Location, error) {
	return s.locations.GetLocation(ctx, strings.TrimSpace(locationID))
}

// Stats aggregates the tickets created inside the stats window.
func (s *Service) Stats(ctx context.Context, opts stats.Options) (stats.Snapshot, error) {
	now := s.opts.Now()
	tickets, err := s.tickets.ListTicketsSince(ctx, stats.WindowStart(now, opts))
	if err != nil {
		return stats.Snapshot{}, err
	}
	return stats.Aggregate(tickets, now, opts), nil
}

func matchesQuery(location models.Location, query string) bool {
	if strings.Contains(strings.ToLower(location.Name), query) {
		return true
	}
	if strings.Contains(strings.ToLower(location.Address), query) {
		return true
	}
	for _, service := range location.Services {
		if strings.Contains(strings.ToLower(service), query) {
			return true
		}
	}
	return false
}
