package queue_test

import (
	"context"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/queue"
	"qms/virtual-queue/internal/stats"

	"go.uber.org/mock/gomock"
)

func (s *QueueServiceTestSuite) TestLocationsFilter() {
	s.Store.AddLocation(models.Location{
		LocationID: "cafe-1",
		Name:       "Brew Corner",
		Category:   "Cafe",
		Services:   []string{"Takeaway"},
		Address:    "12 Harbor Street",
	})
	s.Store.AddLocation(models.Location{
		LocationID: "clinic-1",
		Name:       "City Clinic",
		Category:   "veterinary",
		Services:   []string{"Consultation"},
	})
	ctx := context.Background()

	tests := []struct {
		name   string
		filter queue.LocationFilter
		want   []string
	}{
		{name: "everything", filter: queue.LocationFilter{}, want: []string{"bank-1", "cafe-1", "clinic-1"}},
		{name: "all category", filter: queue.LocationFilter{Category: "all"}, want: []string{"bank-1", "cafe-1", "clinic-1"}},
		{name: "category", filter: queue.LocationFilter{Category: "BANK"}, want: []string{"bank-1"}},
		{name: "unknown category is other", filter: queue.LocationFilter{Category: "veterinary"}, want: []string{"clinic-1"}},
		{name: "search by address", filter: queue.LocationFilter{Query: "harbor"}, want: []string{"cafe-1"}},
		{name: "search by service", filter: queue.LocationFilter{Query: "withdraw"}, want: []string{"bank-1"}},
		{name: "category and search", filter: queue.LocationFilter{Category: "cafe", Query: "clinic"}, want: []string{}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			list, err := s.Service.Locations(ctx, tt.filter)
			s.Require().NoError(err)
			got := make([]string, 0, len(list.Locations))
			for _, location := range list.Locations {
				got = append(got, location.LocationID)
			}
			s.Equal(tt.want, got)
			s.Equal(3, list.Counts[queue.CategoryAll])
			s.Equal(1, list.Counts[models.CategoryBank])
			s.Equal(1, list.Counts[models.CategoryOther])
			s.Equal(0, list.Counts[models.CategoryHospital])
		})
	}
}

func (s *QueueServiceTestSuite) TestLocationNotFound() {
	_, err := s.Service.Location(context.Background(), "missing")
	s.Error(err)
}

func (s *QueueServiceTestSuite) TestStats() {
	ctx := context.Background()
	s.join(s.Ana)
	s.join(s.Ben)

	_, err := s.Service.CallNext(ctx, s.Admin, "bank-1")
	s.Require().NoError(err)
	s.Clock.Advance(10 * time.Minute)
	s.Dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil)
	_, err = s.Service.CompleteCurrent(ctx, s.Admin, "bank-1", "")
	s.Require().NoError(err)

	snapshot, err := s.Service.Stats(ctx, stats.Options{})
	s.Require().NoError(err)
	s.Equal(stats.Counts{Waiting: 1, Completed: 1, Total: 2}, snapshot.Counts)
	s.Equal(1, snapshot.CompletedToday)
	s.Equal(10, snapshot.AvgWaitMinutes)
}
