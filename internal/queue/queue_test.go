package queue_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/notify/mocks"
	"qms/virtual-queue/internal/queue"
	"qms/virtual-queue/internal/store"
	"qms/virtual-queue/internal/store/memory"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type QueueServiceTestSuite struct {
	suite.Suite

	Store      *memory.Store
	Dispatcher *mocks.MockDispatcher
	Clock      *clock
	Service    *queue.Service

	Admin queue.Actor
	Ana   queue.Actor
	Ben   queue.Actor
}

func (s *QueueServiceTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.Store = memory.New()
	s.Store.AddLocation(models.Location{
		LocationID: "bank-1",
		Name:       "Metro Savings Bank",
		Category:   models.CategoryBank,
		Services:   []string{"Deposit", "Withdrawal"},
	})
	s.Dispatcher = mocks.NewMockDispatcher(ctrl)
	s.Clock = &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	s.Service = queue.NewService(s.Store, s.Store, s.Store, s.Dispatcher, queue.Options{Now: s.Clock.Now})

	s.Admin = queue.Actor{UID: "admin-1", Email: "ops@example.com", Admin: true}
	s.Ana = queue.Actor{UID: "user-ana", Email: "ana@example.com", Name: "Ana"}
	s.Ben = queue.Actor{UID: "user-ben", Email: "ben@example.com", Name: "Ben"}
}

func TestQueueServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QueueServiceTestSuite))
}

func (s *QueueServiceTestSuite) join(actor queue.Actor) models.Ticket {
	s.Dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil)
	ticket, err := s.Service.Join(context.Background(), actor, queue.JoinInput{LocationID: "bank-1", Service: "Deposit"})
	s.Require().NoError(err)
	return ticket
}

func (s *QueueServiceTestSuite) TestJoinValidation() {
	tests := []struct {
		name        string
		input       queue.JoinInput
		expectedErr error
	}{
		{name: "missing location", input: queue.JoinInput{Service: "Deposit"}, expectedErr: queue.ErrValidation},
		{name: "missing service", input: queue.JoinInput{LocationID: "bank-1", Service: "  "}, expectedErr: queue.ErrValidation},
		{name: "unknown location", input: queue.JoinInput{LocationID: "nowhere", Service: "Deposit"}, expectedErr: store.ErrLocationNotFound},
		{name: "service not offered", input: queue.JoinInput{LocationID: "bank-1", Service: "Loans"}, expectedErr: queue.ErrValidation},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.Service.Join(context.Background(), s.Ana, tt.input)
			s.ErrorIs(err, tt.expectedErr)
		})
	}
}

func (s *QueueServiceTestSuite) TestJoinAssignsPositionAndWait() {
	for k := 0; k < 4; k++ {
		actor := queue.Actor{UID: "user-" + string(rune('a'+k)), Email: "u@example.com"}
		ticket := s.join(actor)
		s.Equal(k+1, ticket.Position)
		s.Equal(k*5, ticket.EstimatedWait)
		s.Equal(models.StatusWaiting, ticket.Status)
		s.True(strings.HasPrefix(ticket.TicketID, "T"))
		s.Len(ticket.TicketID, 27)
	}

	info, err := s.Service.QueueInfo(context.Background(), "bank-1")
	s.Require().NoError(err)
	s.Equal(4, info.PeopleAhead)
	s.Equal(20, info.EstimatedWait)
}

func (s *QueueServiceTestSuite) TestJoinSnapshotsProfileAndNotifies() {
	var got notify.Notice
	s.Dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, notice notify.Notice) error {
			got = notice
			return errors.New("nats unavailable")
		})

	ticket, err := s.Service.Join(context.Background(), s.Ana, queue.JoinInput{LocationID: "bank-1", Service: "Deposit"})
	s.Require().NoError(err)
	s.Equal("Ana", ticket.CustomerName)
	s.Equal("ana@example.com", ticket.CustomerEmail)
	s.Equal("Metro Savings Bank", ticket.LocationName)

	s.Equal(models.NoticeJoinedQueue, got.Kind)
	s.Equal(ticket.TicketID, got.TicketID)
	s.Equal(1, got.QueuePosition)
	s.True(got.IsFirstQueue)

	read, err := s.Service.GetTicket(context.Background(), s.Ana, ticket.TicketID)
	s.Require().NoError(err)
	s.Equal(ticket, read)
}

func (s *QueueServiceTestSuite) TestFirstQueueFlag() {
	first := s.join(s.Ana)
	s.True(first.IsFirstQueue)

	profile, err := s.Store.GetProfile(context.Background(), s.Ana.UID)
	s.Require().NoError(err)
	s.True(profile.FirstQueueCompleted)

	second := s.join(s.Ana)
	s.False(second.IsFirstQueue)
}

func (s *QueueServiceTestSuite) TestCallNextAndComplete() {
	a := s.join(s.Ana)
	b := s.join(s.Ben)

	served, err := s.Service.CallNext(context.Background(), s.Admin, "bank-1")
	s.Require().NoError(err)
	s.Equal(a.TicketID, served.TicketID)
	s.Equal(models.StatusServing, served.Status)
	s.Require().NotNil(served.ServedAt)
	s.Equal("ops@example.com", served.ServedBy)

	view, err := s.Service.QueueView(context.Background(), "bank-1")
	s.Require().NoError(err)
	s.Require().Len(view.Waiting, 1)
	s.Equal(b.TicketID, view.Waiting[0].TicketID)
	s.Equal(2, view.Waiting[0].Position)
	s.Equal(1, view.Waiting[0].LiveRank)
	s.Require().NotNil(view.Serving)
	s.Equal(a.TicketID, view.Serving.TicketID)

	s.Clock.Advance(12 * time.Minute)
	var notices []notify.Notice
	s.Dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, notice notify.Notice) error {
			notices = append(notices, notice)
			return nil
		}).Times(1)

	done, err := s.Service.CompleteCurrent(context.Background(), s.Admin, "bank-1", "")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
	s.Require().NotNil(done.CompletedAt)
	s.False(done.CompletedAt.Before(done.CreatedAt))

	s.Require().Len(notices, 1)
	s.Equal(models.NoticeServiceCompleted, notices[0].Kind)
	s.Equal(a.TicketID, notices[0].TicketID)
	s.Equal("ops@example.com", notices[0].ServedBy)
	s.GreaterOrEqual(notices[0].TotalWait, 12)
}

func (s *QueueServiceTestSuite) TestCallNextOnEmptyQueue() {
	_, err := s.Service.CallNext(context.Background(), s.Admin, "bank-1")
	s.ErrorIs(err, store.ErrNoWaiting)
	s.Equal("no customers waiting", err.Error())
}

func (s *QueueServiceTestSuite) TestConcurrentCallNextServesOne() {
	for i := 0; i < 5; i++ {
		s.join(queue.Actor{UID: "user-" + string(rune('a'+i))})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Service.CallNext(context.Background(), s.Admin, "bank-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	served := 0
	for err := range errs {
		if err == nil {
			served++
			continue
		}
		s.ErrorIs(err, store.ErrServingSlotTaken)
	}
	s.Equal(1, served)
}

func (s *QueueServiceTestSuite) TestNoShowDoesNotNotify() {
	a := s.join(s.Ana)
	_, err := s.Service.Serve(context.Background(), s.Admin, a.TicketID)
	s.Require().NoError(err)

	gone, err := s.Service.MarkNoShow(context.Background(), s.Admin, "bank-1", a.TicketID)
	s.Require().NoError(err)
	s.Equal(models.StatusNoShow, gone.Status)

	_, err = s.Service.MarkNoShow(context.Background(), s.Admin, "bank-1", "")
	s.ErrorIs(err, store.ErrNoServing)
}

func (s *QueueServiceTestSuite) TestTerminalTicketsStayTerminal() {
	a := s.join(s.Ana)
	_, err := s.Service.Leave(context.Background(), s.Ana, a.TicketID)
	s.Require().NoError(err)

	_, err = s.Service.Serve(context.Background(), s.Admin, a.TicketID)
	s.ErrorIs(err, store.ErrInvalidState)
	_, err = s.Service.Leave(context.Background(), s.Ana, a.TicketID)
	s.ErrorIs(err, store.ErrInvalidState)
}

func (s *QueueServiceTestSuite) TestAdminOperationsNeedAdmin() {
	a := s.join(s.Ana)

	_, err := s.Service.Serve(context.Background(), s.Ana, a.TicketID)
	s.ErrorIs(err, queue.ErrForbidden)
	_, err = s.Service.CallNext(context.Background(), s.Ana, "bank-1")
	s.ErrorIs(err, queue.ErrForbidden)
	_, err = s.Service.CompleteCurrent(context.Background(), s.Ana, "bank-1", "")
	s.ErrorIs(err, queue.ErrForbidden)
	_, err = s.Service.MarkNoShow(context.Background(), s.Ana, "bank-1", "")
	s.ErrorIs(err, queue.ErrForbidden)

	_, err = s.Service.GetTicket(context.Background(), s.Ben, a.TicketID)
	s.ErrorIs(err, queue.ErrForbidden)
	_, err = s.Service.Leave(context.Background(), s.Ben, a.TicketID)
	s.ErrorIs(err, store.ErrNotTicketOwner)
}

func (s *QueueServiceTestSuite) TestMyTickets() {
	first := s.join(s.Ana)
	second := s.join(s.Ana)
	_, err := s.Service.Leave(context.Background(), s.Ana, first.TicketID)
	s.Require().NoError(err)

	mine, err := s.Service.MyTickets(context.Background(), s.Ana)
	s.Require().NoError(err)
	s.Require().Len(mine.Active, 1)
	s.Equal(second.TicketID, mine.Active[0].TicketID)
	s.Require().Len(mine.History, 1)
	s.Equal(first.TicketID, mine.History[0].TicketID)

	empty, err := s.Service.MyTickets(context.Background(), s.Ben)
	s.Require().NoError(err)
	s.NotNil(empty.Active)
	s.Empty(empty.History)
}

func (s *QueueServiceTestSuite) TestTicketEvents() {
	a := s.join(s.Ana)
	_, err := s.Service.CallNext(context.Background(), s.Admin, "bank-1")
	s.Require().NoError(err)

	trail, err := s.Service.TicketEvents(context.Background(), a.TicketID)
	s.Require().NoError(err)
	s.Len(trail.Events, 2)
	s.True(trail.Verified)
	s.Equal(models.StatusServing, trail.Replayed.Status)

	_, err = s.Service.TicketEvents(context.Background(), "T-missing")
	s.ErrorIs(err, store.ErrTicketNotFound)
}

func (s *QueueServiceTestSuite) TestNewTicketIDIsSortable() {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	first := queue.NewTicketID(at)
	second := queue.NewTicketID(at)
	later := queue.NewTicketID(at.Add(time.Millisecond))
	s.NotEqual(first, second)
	s.Less(first, second)
	s.Less(second, later)
}
