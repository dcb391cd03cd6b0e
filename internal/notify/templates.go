package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Email template identifiers.
const (
	TemplateTicketCreated    = "ticket_mail_created"
	TemplateTicketStarted    = "ticket_mail_started"
	TemplateTicketResolved   = "ticket_mail_resolved"
	TemplateTicketClosed     = "ticket_mail_closed"
	TemplateTicketUnresolved = "ticket_mail_unresolved"
)

// TemplateData is the view handed to every email template.
type TemplateData struct {
	RecipientName string
	Reference     string
	Subject       string
	Description   string
	State         string
	Priority      string
	AssigneeName  string
	ThresholdDays int
}

// Rendered is a ready-to-send email.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var builtinTemplates = map[string][2]string{
	TemplateTicketCreated: {
		`Ticket {{.Reference}} received: {{.Subject}}`,
		`Hello {{.RecipientName}},

Your request **{{.Subject}}** has been registered under reference ` + "`{{.Reference}}`" + `.
{{if .Description}}
> {{.Description}}
{{end}}
We will get back to you as soon as an agent picks it up.
`,
	},
	TemplateTicketStarted: {
		`Ticket {{.Reference}} is now in progress`,
		`Hello {{.RecipientName}},

Ticket ` + "`{{.Reference}}`" + ` (**{{.Subject}}**) is now in progress and assigned to you.

- Priority: {{.Priority}}
`,
	},
	TemplateTicketResolved: {
		`Ticket {{.Reference}} has been resolved`,
		`Hello {{.RecipientName}},

Your request **{{.Subject}}** (` + "`{{.Reference}}`" + `) has been resolved{{if .AssigneeName}} by {{.AssigneeName}}{{end}}.

If the problem persists, reply to this email and we will reopen it.
`,
	},
	TemplateTicketClosed: {
		`Ticket {{.Reference}} has been closed`,
		`Hello {{.RecipientName}},

Ticket ` + "`{{.Reference}}`" + ` (**{{.Subject}}**) is now closed. Thank you for contacting support.
`,
	},
	TemplateTicketUnresolved: {
		`Ticket {{.Reference}} is still open`,
		`Hello {{.RecipientName}},

Your request **{{.Subject}}** (` + "`{{.Reference}}`" + `) has been open for more than {{.ThresholdDays}} days.
It is currently in state *{{.State}}*. We have not forgotten about it.
`,
	},
}

// Templates renders the built-in email templates. Bodies are markdown and
// are sent both as plain text and as HTML.
type Templates struct {
	byID     map[string]mailTemplate
	markdown goldmark.Markdown
}

// NewTemplates parses the built-in templates.
func NewTemplates() (*Templates, error) {
	t := &Templates{
		byID:     make(map[string]mailTemplate, len(builtinTemplates)),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	for id, src := range builtinTemplates {
		subject, err := template.New(id + ".subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", id, err)
		}
		body, err := template.New(id + ".body").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", id, err)
		}
		t.byID[id] = mailTemplate{subject: subject, body: body}
	}
	return t, nil
}

// MustTemplates is NewTemplates for wiring code where the built-ins are known to parse.
func MustTemplates() *Templates {
	t, err := NewTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes the template identified by id.
func (t *Templates) Render(id string, data TemplateData) (Rendered, error) {
	tmpl, ok := t.byID[id]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown email template %q", id)
	}

	var subject, body, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s body: %w", id, err)
	}
	if err := t.markdown.Convert(body.Bytes(), &html); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", id, err)
	}
	return Rendered{
		Subject: strings.TrimSpace(subject.String()),
		Text:    body.String(),
		HTML:    html.String(),
	}, nil
}
