package models

import (
	"strings"

	"qms/virtual-queue/internal/geo"
)

const (
	CategoryHospital   = "hospital"
	CategoryBank       = "bank"
	CategoryCafe       = "cafe"
	CategoryRestaurant = "restaurant"
	CategoryOther      = "other"

	DefaultLocationName    = "Unnamed Location"
	DefaultLocationAddress = "Address not specified"
	DefaultLocationPhone   = "Not available"
	DefaultLocationHours   = "Not specified"
	DefaultService         = "General Service"
)

var Categories = []string{CategoryHospital, CategoryBank, CategoryCafe, CategoryRestaurant, CategoryOther}

type Location struct {
	LocationID     string             `json:"location_id"`
	Name           string             `json:"name"`
	Category       string             `json:"category"`
	Services       []string           `json:"services"`
	Address        string             `json:"address"`
	Phone          string             `json:"phone"`
	Hours          string             `json:"hours"`
	RawCoordinates geo.RawCoordinates `json:"-"`
	Point          geo.Point          `json:"point"`
	HasMapLocation bool               `json:"has_map_location"`
}

// Normalize fills defaults and resolves the coordinate shape. It is safe to
// call more than once.
func (l Location) Normalize() Location {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		l.Name = DefaultLocationName
	}
	l.Category = NormalizeCategory(l.Category)
	services := make([]string, 0, len(l.Services))
	for _, service := range l.Services {
		service = strings.TrimSpace(service)
		if service != "" {
			services = append(services, service)
		}
	}
	if len(services) == 0 {
		services = []string{DefaultService}
	}
	l.Services = services
	l.Address = strings.TrimSpace(l.Address)
	if l.Address == "" {
		l.Address = DefaultLocationAddress
	}
	l.Phone = strings.TrimSpace(l.Phone)
	if l.Phone == "" {
		l.Phone = DefaultLocationPhone
	}
	l.Hours = strings.TrimSpace(l.Hours)
	if l.Hours == "" {
		l.Hours = DefaultLocationHours
	}
	l.Point = geo.Normalize(l.RawCoordinates)
	l.HasMapLocation = l.Point.Valid
	return l
}

func (l Location) OffersService(service string) bool {
	for _, candidate := range l.Services {
		if candidate == service {
			return true
		}
	}
	return false
}

func NormalizeCategory(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, category := range Categories {
		if category == value {
			return value
		}
	}
	return CategoryOther
}
