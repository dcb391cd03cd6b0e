// Package report renders printable ticket sheets.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrDocumentNotFound is returned for unknown or expired handles.
var ErrDocumentNotFound = errors.New("document not found")

// Sheet carries the ticket plus display names resolved by the caller.
type Sheet struct {
	Ticket       domain.Ticket
	CustomerName string
	AssigneeName string
	CreatorName  string
}

// DocumentStore keeps rendered documents for a limited time.
type DocumentStore interface {
	Put(ctx context.Context, handle string, body []byte, ttl time.Duration) error
	Get(ctx context.Context, handle string) ([]byte, error)
}

// Renderer turns tickets into HTML documents and returns a retrieval handle.
type Renderer struct {
	store    DocumentStore
	ttl      time.Duration
	markdown goldmark.Markdown
}

// NewRenderer builds a Renderer.
func NewRenderer(store DocumentStore, ttl time.Duration) *Renderer {
	return &Renderer{
		store:    store,
		ttl:      ttl,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render stores the HTML sheet for a ticket and returns its handle.
func (r *Renderer) Render(ctx context.Context, sheet Sheet) (string, error) {
	var html bytes.Buffer
	if err := r.markdown.Convert([]byte(Markdown(sheet)), &html); err != nil {
		return "", fmt.Errorf("render ticket %s: %w", sheet.Ticket.ID, err)
	}
	handle := uuid.NewString()
	if err := r.store.Put(ctx, handle, html.Bytes(), r.ttl); err != nil {
		return "", fmt.Errorf("store ticket %s document: %w", sheet.Ticket.ID, err)
	}
	return handle, nil
}

// Fetch returns a previously rendered document.
func (r *Renderer) Fetch(ctx context.Context, handle string) ([]byte, error) {
	return r.store.Get(ctx, handle)
}

// Markdown lays out the ticket sheet.
func Markdown(sheet Sheet) string {
	t := sheet.Ticket
	var b strings.Builder
	fmt.Fprintf(&b, "# Ticket %s\n\n", t.Reference)
	fmt.Fprintf(&b, "## %s\n\n", t.Subject)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", "\\|"))
	}
	row("State", string(t.State))
	row("Priority", string(t.Priority))
	row("Customer", sheet.CustomerName)
	row("Assignee", sheet.AssigneeName)
	row("Created by", sheet.CreatorName)
	row("Opened", t.OpenedAt.UTC().Format(time.RFC3339))
	if t.ClosedAt != nil {
		row("Closed", t.ClosedAt.UTC().Format(time.RFC3339))
	}
	if strings.TrimSpace(t.Description) != "" {
		b.WriteString("\n### Description\n\n")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// RedisStore keeps documents under document:<handle> with an expiry.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, handle string, body []byte, ttl time.Duration) error {
	return s.client.Set(ctx, "document:"+handle, body, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, handle string) ([]byte, error) {
	body, err := s.client.Get(ctx, "document:"+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDocumentNotFound
	}
	return body, err
}
