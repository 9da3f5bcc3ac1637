package models

import (
	"testing"
	"time"

	"qms/virtual-queue/internal/geo"
)

func TestLocationNormalizeDefaults(t *testing.T) {
	loc := Location{LocationID: "loc-1", Category: " BANK ", Services: []string{" ", ""}}.Normalize()
	if loc.Name != DefaultLocationName {
		t.Fatalf("name=%q", loc.Name)
	}
	if loc.Category != CategoryBank {
		t.Fatalf("category=%q", loc.Category)
	}
	if len(loc.Services) != 1 || loc.Services[0] != DefaultService {
		t.Fatalf("services=%v", loc.Services)
	}
	if loc.Address != DefaultLocationAddress {
		t.Fatalf("address=%q", loc.Address)
	}
	if loc.HasMapLocation {
		t.Fatalf("expected no map location")
	}
}

func TestLocationNormalizeCoordinates(t *testing.T) {
	loc := Location{
		Category:       "spa",
		RawCoordinates: geo.RawCoordinates{Shape: geo.ShapeLatLng, Lat: 14.5, Lng: 121.0},
	}.Normalize()
	if loc.Category != CategoryOther {
		t.Fatalf("category=%q", loc.Category)
	}
	if !loc.HasMapLocation || loc.Point.Lat != 14.5 || loc.Point.Lng != 121.0 {
		t.Fatalf("unexpected point %+v", loc.Point)
	}
}

func TestTicketWaitMinutes(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	completed := created.Add(12*time.Minute + 40*time.Second)
	ticket := Ticket{CreatedAt: created}
	if ticket.WaitMinutes() != 0 {
		t.Fatalf("expected zero before completion")
	}
	ticket.CompletedAt = &completed
	if got := ticket.WaitMinutes(); got != 13 {
		t.Fatalf("wait=%d, want 13", got)
	}
}

func TestProfileIsAdmin(t *testing.T) {
	cases := []struct {
		profile Profile
		want    bool
	}{
		{Profile{Role: RoleAdmin, IsActive: true}, true},
		{Profile{Role: RoleAdmin, IsActive: false}, false},
		{Profile{Role: RoleCustomer, IsActive: true}, false},
	}
	for _, tt := range cases {
		if got := tt.profile.IsAdmin(); got != tt.want {
			t.Fatalf("IsAdmin(%+v)=%v, want %v", tt.profile, got, tt.want)
		}
	}
}
