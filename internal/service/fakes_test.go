package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/report"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/sqlite"
)

type fakeSequence struct {
	mu  sync.Mutex
	n   int
	err error
}

func (f *fakeSequence) Next(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("TCK%05d", f.n), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) messages(templateID string) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.sent {
		if templateID == "" || m.TemplateID == templateID {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingNotifier) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type failingActivities struct {
	repository.ActivityRepository
}

func (failingActivities) Create(context.Context, *domain.ActivityEntry) error {
	return errors.New("activity log unavailable")
}

// staleTickets loses every compare-and-swap, as if another writer got there first.
type staleTickets struct {
	repository.TicketRepository
}

func (staleTickets) Update(context.Context, *domain.Ticket, domain.TicketState) error {
	return repository.ErrStaleState
}

// withStaleWrites returns a ticket service over h's store whose writes always lose the race.
func (h *harness) withStaleWrites() *TicketService {
	store := *h.store
	store.Tickets = staleTickets{TicketRepository: h.store.Tickets}
	return NewTicketService(TicketDependencies{
		Store:    &store,
		Sequence: h.sequence,
		Clock:    h.clock.Now,
	})
}

type fakeRenderer struct {
	sheets []report.Sheet
}

func (f *fakeRenderer) Render(_ context.Context, sheet report.Sheet) (string, error) {
	f.sheets = append(f.sheets, sheet)
	return "doc-handle", nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harnessOptions struct {
	strict     bool
	activities func(repository.ActivityRepository) repository.ActivityRepository
	logger     *zap.Logger
}

type harness struct {
	store         *repository.Store
	tickets       *TicketService
	notifications *NotificationService
	sweep         *SweepService
	notifier      *recordingNotifier
	sequence      *fakeSequence
	renderer      *fakeRenderer
	clock         *testClock

	lead     *domain.User
	agent    *domain.User
	other    *domain.User
	customer *domain.Contact
}

var baseTime = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := db.Store()

	activities := store.Activities
	if o.activities != nil {
		activities = o.activities(activities)
	}

	h := &harness{
		store:    store,
		notifier: &recordingNotifier{},
		sequence: &fakeSequence{},
		renderer: &fakeRenderer{},
		clock:    &testClock{now: baseTime},
	}

	bus := events.NewInMemoryDispatcher(o.logger)
	h.notifications = NewNotificationService(NotificationDependencies{
		Dispatcher: bus,
		Notifier:   h.notifier,
		Users:      store.Users,
		Contacts:   store.Contacts,
		Activities: activities,
		Scheduled:  store.Scheduled,
		Logger:     o.logger,
	})
	h.notifications.RegisterHandlers()
	NewHistoryRecorder(store.History).RegisterHandlers(bus)

	h.tickets = NewTicketService(TicketDependencies{
		Store:          store,
		Activities:     activities,
		Sequence:       h.sequence,
		SequenceStrict: o.strict,
		Locker:         lock.NewKeyedMutex(),
		Renderer:       h.renderer,
		Dispatcher:     bus,
		Logger:         o.logger,
		Clock:          h.clock.Now,
	})
	h.sweep = NewSweepService(store.Tickets, bus, config.SweepConfig{ThresholdDays: 7, Concurrency: 3}, o.logger, h.clock.Now)

	h.lead = h.addUser(t, "Lena Lead", "lead@example.com")
	h.agent = h.addUser(t, "Aaron Agent", "agent@example.com")
	h.other = h.addUser(t, "Olga Other", "other@example.com")
	h.customer = h.addContact(t, "Carla Customer", "carla@example.com")
	return h
}

func (h *harness) addUser(t *testing.T, name, email string) *domain.User {
	t.Helper()
	ctx := context.Background()
	contact := &domain.Contact{Name: name, Email: email}
	if err := h.store.Contacts.Create(ctx, contact); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	user := &domain.User{Name: name, Email: email, PasswordHash: "x", ContactID: &contact.ID}
	if err := h.store.Users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (h *harness) addContact(t *testing.T, name, email string) *domain.Contact {
	t.Helper()
	contact := &domain.Contact{Name: name, Email: email}
	if err := h.store.Contacts.Create(context.Background(), contact); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	return contact
}

// seed stores a ticket directly in the given state, bypassing the engine.
func (h *harness) seed(t *testing.T, state domain.TicketState, openedAt time.Time) *domain.Ticket {
	t.Helper()
	ref, _ := h.sequence.Next(context.Background(), "seed")
	ticket := &domain.Ticket{
		Reference:  ref,
		Subject:    "Printer on fire",
		CustomerID: &h.customer.ID,
		AssigneeID: &h.agent.ID,
		CreatorID:  h.lead.ID,
		Priority:   domain.TicketPriorityNormal,
		State:      state,
		OpenedAt:   openedAt,
	}
	if err := h.store.Tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func (h *harness) reload(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := h.store.Tickets.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return ticket
}

func withStrictSequence(o *harnessOptions) { o.strict = true }

func withFailingActivityLog(o *harnessOptions) {
	o.activities = func(inner repository.ActivityRepository) repository.ActivityRepository {
		return failingActivities{ActivityRepository: inner}
	}
}

func withLogger(logger *zap.Logger) func(*harnessOptions) {
	return func(o *harnessOptions) { o.logger = logger }
}

var allStates = []domain.TicketState{
	domain.TicketStateNew,
	domain.TicketStateInProgress,
	domain.TicketStateWaiting,
	domain.TicketStateSolved,
	domain.TicketStateClosed,
}
