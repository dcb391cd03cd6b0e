package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/report"
	"github.com/spec-kit/helpdesk-service/internal/repository/sqlite"
	"github.com/spec-kit/helpdesk-service/internal/sequence"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

type memoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memoryCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	return redis.NewIntResult(m.values[key], nil)
}

type memoryDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (m *memoryDocuments) Put(_ context.Context, handle string, body []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[handle] = body
	return nil
}

func (m *memoryDocuments) Get(_ context.Context, handle string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.docs[handle]
	if !ok {
		return nil, report.ErrDocumentNotFound
	}
	return body, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := db.Store()
	logger := zap.NewNop()

	templates := notify.MustTemplates()
	bus := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: bus,
		Notifier:   notify.NewLogNotifier(templates, "helpdesk@example.com", logger),
		Users:      store.Users,
		Contacts:   store.Contacts,
		Activities: store.Activities,
		Scheduled:  store.Scheduled,
		Logger:     logger,
	})
	worker.StartNotificationWorker(bus, notifications, service.NewHistoryRecorder(store.History))

	renderer := report.NewRenderer(&memoryDocuments{docs: map[string][]byte{}}, time.Hour)
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Activities: store.Activities,
		Sequence:   sequence.NewRedisGenerator(&memoryCounter{values: map[string]int64{}}, "TCK", 5),
		Locker:     lock.NewKeyedMutex(),
		Renderer:   renderer,
		Dispatcher: bus,
		Logger:     logger,
	})
	sweep := service.NewSweepService(store.Tickets, bus, config.SweepConfig{ThresholdDays: 7, Concurrency: 2}, logger, nil)
	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		BcryptCost:            bcrypt.MinCost,
	}, store.Users, store.Contacts)
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", map[string]handlers.Pinger{"store": okPinger{}}),
		Users:          handlers.NewUsersHandler(authService),
		Contacts:       handlers.NewContactsHandler(service.NewContactService(store.Contacts)),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Documents:      handlers.NewDocumentsHandler(renderer),
		Admin:          handlers.NewAdminHandler(sweep, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users),
	})
	return app
}

type apiResponse struct {
	status int
	header map[string]string
	raw    []byte
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := apiResponse{status: resp.StatusCode, raw: raw, header: map[string]string{
		"Content-Type": resp.Header.Get("Content-Type"),
	}}
	if strings.HasPrefix(out.header["Content-Type"], "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return out
}

func (r apiResponse) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

type session struct {
	token string
	id    string
}

func register(t *testing.T, app *fiber.App, name, email string) session {
	t.Helper()
	resp := call(t, app, "POST", "/auth/users/register", "", map[string]string{
		"name": name, "email": email, "password": "correct-horse",
	})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("register %s: %d %s", email, resp.status, resp.raw)
	}
	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	resp.decode(t, &data)
	return session{token: data.Auth.Token, id: data.User.ID}
}

type ticketJSON struct {
	ID         string  `json:"id"`
	Reference  string  `json:"reference"`
	State      string  `json:"state"`
	AssigneeID *string `json:"assignee_id"`
	ClosedAt   *string `json:"closed_at"`
}

func createTicket(t *testing.T, app *fiber.App, s session, subject, customerID, assigneeID string) ticketJSON {
	t.Helper()
	resp := call(t, app, "POST", "/tickets", s.token, map[string]any{
		"subject":     subject,
		"customer_id": customerID,
		"assignee_id": assigneeID,
	})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("create ticket: %d %s", resp.status, resp.raw)
	}
	var ticket ticketJSON
	resp.decode(t, &ticket)
	return ticket
}

func createCustomer(t *testing.T, app *fiber.App, s session) string {
	t.Helper()
	resp := call(t, app, "POST", "/contacts", s.token, map[string]string{
		"name": "Carla Customer", "email": "carla@example.com",
	})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("create contact: %d %s", resp.status, resp.raw)
	}
	var contact struct {
		ID string `json:"id"`
	}
	resp.decode(t, &contact)
	return contact.ID
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	lead := register(t, app, "Lena Lead", "lead@example.com")
	agent := register(t, app, "Aaron Agent", "agent@example.com")
	customer := createCustomer(t, app, lead)

	ticket := createTicket(t, app, lead, "Printer on fire", customer, agent.id)
	if ticket.Reference != "TCK00001" || ticket.State != "new" {
		t.Fatalf("created = %+v", ticket)
	}

	resp := call(t, app, "POST", "/tickets/"+ticket.ID+"/start", lead.token, nil)
	if resp.status != fiber.StatusOK {
		t.Fatalf("start: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/solve", lead.token, nil)
	if resp.status != fiber.StatusConflict || resp.Error == nil {
		t.Fatalf("solve by non-assignee: %d %s", resp.status, resp.raw)
	}
	if resp.Error.Code != "PRECONDITION_VIOLATION" || resp.Error.Details["rule"] != "actor" {
		t.Errorf("error = %+v", resp.Error)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/solve", agent.token, nil)
	if resp.status != fiber.StatusOK {
		t.Fatalf("solve: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/reset", lead.token, nil)
	if resp.status != fiber.StatusConflict || resp.Error.Details["rule"] != "state" {
		t.Fatalf("reset from solved: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/close", lead.token, nil)
	var closed ticketJSON
	resp.decode(t, &closed)
	if resp.status != fiber.StatusOK || closed.State != "closed" || closed.ClosedAt == nil {
		t.Fatalf("close: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "GET", "/tickets/"+ticket.ID, lead.token, nil)
	if resp.status != fiber.StatusOK {
		t.Fatalf("get: %d %s", resp.status, resp.raw)
	}
	var detail struct {
		History []struct {
			ChangeType string `json:"change_type"`
			NewValue   string `json:"new_value"`
		} `json:"history"`
		Activities []struct {
			Body string `json:"body"`
		} `json:"activities"`
		Scheduled []struct {
			Note string `json:"note"`
		} `json:"scheduled_activities"`
	}
	resp.decode(t, &detail)
	var states []string
	for _, h := range detail.History {
		if h.ChangeType == "STATE_CHANGE" {
			states = append(states, h.NewValue)
		}
	}
	if got := strings.Join(states, ","); got != "new,in_progress,solved,closed" {
		t.Errorf("state history = %s", got)
	}
	if len(detail.Activities) != 2 {
		t.Errorf("activities = %+v, want started and resolved posts", detail.Activities)
	}
	if len(detail.Scheduled) != 1 {
		t.Errorf("scheduled = %+v, want one follow-up", detail.Scheduled)
	}
}

func TestBatchTransitionReportsPartialProgress(t *testing.T) {
	app := newTestApp(t)
	lead := register(t, app, "Lena Lead", "lead@example.com")
	agent := register(t, app, "Aaron Agent", "agent@example.com")
	customer := createCustomer(t, app, lead)

	a := createTicket(t, app, lead, "VPN down", customer, agent.id)
	b := createTicket(t, app, lead, "Mail bouncing", customer, agent.id)

	resp := call(t, app, "POST", "/tickets/batch/start", lead.token, map[string]any{"ticket_ids": []string{a.ID, b.ID}})
	if resp.status != fiber.StatusOK {
		t.Fatalf("batch start: %d %s", resp.status, resp.raw)
	}
	var batch struct {
		Action       string       `json:"action"`
		Transitioned []ticketJSON `json:"transitioned"`
	}
	resp.decode(t, &batch)
	if batch.Action != "start" || len(batch.Transitioned) != 2 || batch.Transitioned[1].State != "in_progress" {
		t.Fatalf("batch = %+v", batch)
	}

	call(t, app, "POST", "/tickets/"+a.ID+"/solve", agent.token, nil)
	resp = call(t, app, "POST", "/tickets/batch/close", lead.token, map[string]any{"ticket_ids": []string{a.ID, b.ID}})
	if resp.status != fiber.StatusConflict || resp.Error == nil {
		t.Fatalf("batch close: %d %s", resp.status, resp.raw)
	}
	resp.decode(t, &batch)
	if len(batch.Transitioned) != 1 || batch.Transitioned[0].ID != a.ID {
		t.Errorf("transitioned before failure = %+v", batch.Transitioned)
	}

	resp = call(t, app, "POST", "/tickets/batch/explode", lead.token, map[string]any{"ticket_ids": []string{a.ID}})
	if resp.status != fiber.StatusBadRequest {
		t.Errorf("unknown action: %d %s", resp.status, resp.raw)
	}
}

func TestPrintAndFetchDocument(t *testing.T) {
	app := newTestApp(t)
	lead := register(t, app, "Lena Lead", "lead@example.com")
	customer := createCustomer(t, app, lead)
	ticket := createTicket(t, app, lead, "Printer on fire", customer, "")

	resp := call(t, app, "POST", "/tickets/"+ticket.ID+"/print", lead.token, nil)
	if resp.status != fiber.StatusCreated {
		t.Fatalf("print: %d %s", resp.status, resp.raw)
	}
	var doc struct {
		Handle string `json:"handle"`
		URL    string `json:"url"`
	}
	resp.decode(t, &doc)

	resp = call(t, app, "GET", doc.URL, lead.token, nil)
	if resp.status != fiber.StatusOK || !strings.HasPrefix(resp.header["Content-Type"], "text/html") {
		t.Fatalf("fetch: %d %q", resp.status, resp.header["Content-Type"])
	}
	for _, want := range []string{ticket.Reference, "Carla Customer", "Lena Lead"} {
		if !strings.Contains(string(resp.raw), want) {
			t.Errorf("document missing %q", want)
		}
	}

	resp = call(t, app, "GET", "/documents/unknown", lead.token, nil)
	if resp.status != fiber.StatusNotFound {
		t.Errorf("unknown handle: %d", resp.status)
	}
}

func TestAssignPriorityAndNotify(t *testing.T) {
	app := newTestApp(t)
	lead := register(t, app, "Lena Lead", "lead@example.com")
	agent := register(t, app, "Aaron Agent", "agent@example.com")
	ticket := createTicket(t, app, lead, "Badge reader", "", "")

	resp := call(t, app, "POST", "/tickets/"+ticket.ID+"/notify-assignee", lead.token, nil)
	if resp.status != fiber.StatusOK || string(resp.Data) != "null" {
		t.Errorf("notify without assignee: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/assign", lead.token, map[string]any{"assignee_id": "ghost"})
	if resp.status != fiber.StatusBadRequest {
		t.Errorf("assign unknown user: %d %s", resp.status, resp.raw)
	}
	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/assign", lead.token, map[string]any{"assignee_id": agent.id})
	var assigned ticketJSON
	resp.decode(t, &assigned)
	if assigned.AssigneeID == nil || *assigned.AssigneeID != agent.id {
		t.Fatalf("assign: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/notify-assignee", lead.token, nil)
	if resp.status != fiber.StatusCreated {
		t.Errorf("notify: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/priority", lead.token, map[string]any{"priority": "blazing"})
	if resp.status != fiber.StatusBadRequest {
		t.Errorf("bad priority: %d", resp.status)
	}
	resp = call(t, app, "POST", "/tickets/"+ticket.ID+"/priority", lead.token, map[string]any{"priority": "urgent"})
	if resp.status != fiber.StatusOK {
		t.Errorf("priority: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "GET", "/tickets?priority=urgent&assignee_id="+agent.id, lead.token, nil)
	var list []ticketJSON
	resp.decode(t, &list)
	if len(list) != 1 || list[0].ID != ticket.ID {
		t.Errorf("filtered list = %+v", list)
	}

	resp = call(t, app, "GET", "/tickets?state=limbo", lead.token, nil)
	if resp.status != fiber.StatusBadRequest {
		t.Errorf("invalid state filter: %d", resp.status)
	}

	resp = call(t, app, "GET", "/tickets?opened_from=yesterday", lead.token, nil)
	if resp.status != fiber.StatusBadRequest || resp.Error == nil || resp.Error.Details["field"] != "opened_from" {
		t.Errorf("invalid opened_from: %d %s", resp.status, resp.raw)
	}
	resp = call(t, app, "GET", "/tickets?opened_to=2024-13-45T00:00:00Z", lead.token, nil)
	if resp.status != fiber.StatusBadRequest || resp.Error == nil || resp.Error.Details["field"] != "opened_to" {
		t.Errorf("invalid opened_to: %d %s", resp.status, resp.raw)
	}
	resp = call(t, app, "GET", "/tickets?opened_to=2000-01-01T00:00:00Z", lead.token, nil)
	list = nil
	resp.decode(t, &list)
	if resp.status != fiber.StatusOK || len(list) != 0 {
		t.Errorf("opened_to in the past: %d %s", resp.status, resp.raw)
	}
}

func TestAuthAndErrors(t *testing.T) {
	app := newTestApp(t)

	resp := call(t, app, "GET", "/tickets", "", nil)
	if resp.status != fiber.StatusUnauthorized || resp.Error.Code != "UNAUTHORIZED" {
		t.Errorf("anonymous list: %d %s", resp.status, resp.raw)
	}

	lead := register(t, app, "Lena Lead", "lead@example.com")
	resp = call(t, app, "POST", "/auth/users/register", "", map[string]string{
		"name": "Again", "email": "LEAD@example.com", "password": "correct-horse",
	})
	if resp.status != fiber.StatusConflict {
		t.Errorf("duplicate register: %d", resp.status)
	}
	resp = call(t, app, "POST", "/auth/users/login", "", map[string]string{
		"email": "lead@example.com", "password": "wrong-password",
	})
	if resp.status != fiber.StatusUnauthorized {
		t.Errorf("bad login: %d", resp.status)
	}

	resp = call(t, app, "GET", "/tickets/"+"missing", lead.token, nil)
	if resp.status != fiber.StatusNotFound || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("missing ticket: %d %s", resp.status, resp.raw)
	}
	resp = call(t, app, "POST", "/tickets", lead.token, map[string]any{"subject": "   "})
	if resp.status != fiber.StatusBadRequest || resp.Error.Code != "VALIDATION_FAILED" {
		t.Errorf("blank subject: %d %s", resp.status, resp.raw)
	}

	resp = call(t, app, "GET", "/auth/me", lead.token, nil)
	if resp.status != fiber.StatusOK {
		t.Errorf("me: %d", resp.status)
	}
}

func TestHealthSweepAndMetrics(t *testing.T) {
	app := newTestApp(t)
	if resp := call(t, app, "GET", "/health/live", "", nil); resp.status != fiber.StatusOK {
		t.Errorf("live: %d", resp.status)
	}
	if resp := call(t, app, "GET", "/health/ready", "", nil); resp.status != fiber.StatusOK {
		t.Errorf("ready: %d %s", resp.status, resp.raw)
	}

	lead := register(t, app, "Lena Lead", "lead@example.com")
	resp := call(t, app, "POST", "/admin/sweep", lead.token, nil)
	if resp.status != fiber.StatusOK {
		t.Fatalf("sweep: %d %s", resp.status, resp.raw)
	}
	var result struct {
		Reminded int `json:"reminded"`
	}
	resp.decode(t, &result)
	if result.Reminded != 0 {
		t.Errorf("reminded = %d on a fresh store", result.Reminded)
	}

	resp = call(t, app, "GET", "/admin/metrics", lead.token, nil)
	var snap observability.Snapshot
	resp.decode(t, &snap)
	found := false
	for _, r := range snap.Requests {
		if r.Key == fmt.Sprintf("/health/live|GET|%d", fiber.StatusOK) {
			found = true
		}
	}
	if !found {
		t.Errorf("metrics missing live probe: %+v", snap.Requests)
	}
}
