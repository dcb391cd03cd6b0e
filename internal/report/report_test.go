package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type memoryStore struct {
	docs map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Put(_ context.Context, handle string, body []byte, ttl time.Duration) error {
	m.docs[handle] = body
	m.ttls[handle] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, handle string) ([]byte, error) {
	body, ok := m.docs[handle]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return body, nil
}

func sampleSheet() Sheet {
	return Sheet{
		Ticket: domain.Ticket{
			ID:          "t1",
			Reference:   "TCK00007",
			Subject:     "VPN | down",
			Description: "Cannot connect since Monday.",
			Priority:    domain.TicketPriorityHigh,
			State:       domain.TicketStateWaiting,
			OpenedAt:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		CustomerName: "Ada",
		AssigneeName: "Bob",
	}
}

func TestMarkdownLayout(t *testing.T) {
	md := Markdown(sampleSheet())
	for _, want := range []string{
		"# Ticket TCK00007",
		"| State | waiting |",
		"| Assignee | Bob |",
		"| Created by | - |",
		"| Opened | 2024-03-01T09:00:00Z |",
		"Cannot connect since Monday.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "| Closed |") {
		t.Error("open ticket should not list a closed date")
	}
}

func TestRenderStoresHTML(t *testing.T) {
	store := newMemoryStore()
	r := NewRenderer(store, time.Hour)
	ctx := context.Background()

	handle, err := r.Render(ctx, sampleSheet())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if store.ttls[handle] != time.Hour {
		t.Errorf("ttl = %v", store.ttls[handle])
	}
	body, err := r.Fetch(ctx, handle)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	html := string(body)
	if !strings.Contains(html, "<h1>Ticket TCK00007</h1>") || !strings.Contains(html, "<table>") {
		t.Errorf("html = %s", html)
	}

	if _, err := r.Fetch(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("err = %v", err)
	}
}
