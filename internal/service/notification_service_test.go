package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
)

func TestStartedNotifiesAssignee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateNew, baseTime)

	if _, err := h.tickets.StartProgress(ctx, ticket.ID, h.agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	started := h.notifier.messages(notify.TemplateTicketStarted)
	if len(started) != 1 || started[0].ToEmail != h.agent.Email {
		t.Errorf("started emails = %+v", started)
	}

	entries, scheduled, err := h.tickets.Activities(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Body != "<b>Ticket is now in progress</b><br/>Assigned to: Aaron Agent" {
		t.Errorf("body = %q", entries[0].Body)
	}
	if len(entries[0].NotifyContacts) != 1 || entries[0].NotifyContacts[0] != *h.agent.ContactID {
		t.Errorf("audience = %v", entries[0].NotifyContacts)
	}

	if len(scheduled) != 1 {
		t.Fatalf("scheduled = %+v", scheduled)
	}
	if scheduled[0].AssigneeID != h.agent.ID || scheduled[0].Note != followUpNote {
		t.Errorf("scheduled = %+v", scheduled[0])
	}
	if !scheduled[0].DueDate.Equal(baseTime.AddDate(0, 0, 1)) {
		t.Errorf("due = %v", scheduled[0].DueDate)
	}
}

func TestStartedWithoutAssigneeSkipsEmailAndFollowUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.tickets.Create(ctx, h.lead.ID, TicketCreateInput{Subject: "No owner"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.tickets.StartProgress(ctx, ticket.ID, h.lead.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if n := len(h.notifier.messages("")); n != 0 {
		t.Errorf("emails = %d", n)
	}
	entries, scheduled, _ := h.tickets.Activities(ctx, ticket.ID)
	if len(entries) != 1 || len(entries[0].NotifyContacts) != 0 {
		t.Errorf("entries = %+v", entries)
	}
	if len(scheduled) != 0 {
		t.Errorf("scheduled = %+v", scheduled)
	}
}

func TestWaitingPostsToCreatorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateInProgress, baseTime)

	if _, err := h.tickets.SetWaiting(ctx, ticket.ID, h.agent.ID); err != nil {
		t.Fatalf("waiting: %v", err)
	}
	if n := len(h.notifier.messages("")); n != 0 {
		t.Errorf("waiting sent %d emails", n)
	}
	entries, scheduled, _ := h.tickets.Activities(ctx, ticket.ID)
	if len(entries) != 1 || len(scheduled) != 0 {
		t.Fatalf("entries=%d scheduled=%d", len(entries), len(scheduled))
	}
	body := entries[0].Body
	if !strings.Contains(body, ticket.Reference) || !strings.Contains(body, "Aaron Agent") || !strings.Contains(body, "Carla Customer") {
		t.Errorf("body = %q", body)
	}
	if len(entries[0].NotifyContacts) != 1 || entries[0].NotifyContacts[0] != *h.lead.ContactID {
		t.Errorf("audience = %v", entries[0].NotifyContacts)
	}
}

func TestLogBodiesEscapeNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.addContact(t, "<img src=x onerror=alert(1)>", "mallory@example.com")
	assignee := h.addUser(t, "Eve <script>alert(1)</script>", "eve@example.com")

	ticket, err := h.tickets.Create(ctx, h.lead.ID, TicketCreateInput{
		Subject:    "Broken laptop",
		CustomerID: &customer.ID,
		AssigneeID: &assignee.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []Transition{TransitionStart, TransitionWaiting, TransitionSolve} {
		if _, err := h.tickets.Apply(ctx, step, ticket.ID, assignee.ID); err != nil {
			t.Fatalf("%s: %v", step, err)
		}
	}

	entries, _, err := h.tickets.Activities(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want started, waiting and resolved posts", len(entries))
	}
	for _, entry := range entries {
		if strings.Contains(entry.Body, "<img") || strings.Contains(entry.Body, "<script>") {
			t.Errorf("unescaped name in body %q", entry.Body)
		}
	}
	if !strings.Contains(entries[1].Body, "&lt;img src=x onerror=alert(1)&gt;") {
		t.Errorf("waiting body = %q, want escaped customer name", entries[1].Body)
	}
	if !strings.Contains(entries[2].Body, "Eve &lt;script&gt;") {
		t.Errorf("resolved body = %q, want escaped assignee name", entries[2].Body)
	}
	if !strings.HasPrefix(entries[2].Body, "<b>Notification:</b>") {
		t.Errorf("markup should survive: %q", entries[2].Body)
	}
}

func TestResolvedEmailsCustomerAndPostsToCreator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateWaiting, baseTime)

	if _, err := h.tickets.SetSolved(ctx, ticket.ID, h.agent.ID); err != nil {
		t.Fatalf("solve: %v", err)
	}
	resolved := h.notifier.messages(notify.TemplateTicketResolved)
	if len(resolved) != 1 || resolved[0].ToEmail != h.customer.Email || resolved[0].Data.AssigneeName != "Aaron Agent" {
		t.Errorf("resolved = %+v", resolved)
	}
	entries, _, _ := h.tickets.Activities(ctx, ticket.ID)
	if len(entries) != 1 || entries[0].NotifyContacts[0] != *h.lead.ContactID {
		t.Errorf("entries = %+v", entries)
	}
	if !strings.Contains(entries[0].Body, "was resolved by Aaron Agent") {
		t.Errorf("body = %q", entries[0].Body)
	}
}

func TestClosedAndResetPostNothingInternally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateSolved, baseTime)

	if _, err := h.tickets.Close(ctx, ticket.ID, h.lead.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := h.tickets.ResetToNew(ctx, ticket.ID, h.lead.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := len(h.notifier.messages(notify.TemplateTicketClosed)); n != 1 {
		t.Errorf("closed emails = %d", n)
	}
	if n := len(h.notifier.messages("")); n != 1 {
		t.Errorf("total emails = %d", n)
	}
	entries, scheduled, _ := h.tickets.Activities(ctx, ticket.ID)
	if len(entries) != 0 || len(scheduled) != 0 {
		t.Errorf("entries=%d scheduled=%d", len(entries), len(scheduled))
	}
}

func TestEmailSkippedWithoutCustomerEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	silent := h.addContact(t, "No Mail", "")

	if _, err := h.tickets.Create(ctx, h.lead.ID, TicketCreateInput{Subject: "Quiet", CustomerID: &silent.ID}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.tickets.Create(ctx, h.lead.ID, TicketCreateInput{Subject: "Anonymous"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := len(h.notifier.messages("")); n != 0 {
		t.Errorf("emails = %d", n)
	}
}

func TestLogFailureDoesNotBlockEmail(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, withFailingActivityLog, withLogger(zap.New(core)))
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateInProgress, baseTime)

	if _, err := h.tickets.SetSolved(ctx, ticket.ID, h.agent.ID); err != nil {
		t.Fatalf("solve: %v", err)
	}
	if n := len(h.notifier.messages(notify.TemplateTicketResolved)); n != 1 {
		t.Errorf("resolved emails = %d", n)
	}
	failures := logs.FilterMessage("notification channel failed").All()
	if len(failures) != 1 || failures[0].ContextMap()["channel"] != ChannelLog {
		t.Errorf("failure logs = %+v", failures)
	}
}

func TestEmailFailureDoesNotBlockLogOrFollowUp(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, withLogger(zap.New(core)))
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStateNew, baseTime)
	h.notifier.fail(errors.New("smtp down"))

	if _, err := h.tickets.StartProgress(ctx, ticket.ID, h.agent.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	entries, scheduled, _ := h.tickets.Activities(ctx, ticket.ID)
	if len(entries) != 1 || len(scheduled) != 1 {
		t.Errorf("entries=%d scheduled=%d", len(entries), len(scheduled))
	}
	failures := logs.FilterMessage("notification channel failed").All()
	if len(failures) != 1 || failures[0].ContextMap()["channel"] != ChannelEmail {
		t.Errorf("failure logs = %+v", failures)
	}
}

func TestHandleIgnoresEventsOutsideTable(t *testing.T) {
	h := newHarness(t)
	err := h.notifications.Handle(context.Background(), events.Event{Type: events.EventTicketAssigned, TicketID: "t"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n := len(h.notifier.messages("")); n != 0 {
		t.Errorf("emails = %d", n)
	}
}
