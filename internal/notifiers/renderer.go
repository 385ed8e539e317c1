package notifiers

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Renderer turns a notification's template name and data into message text.
// Every template file defines a "subject" and a "body" template.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded template set.
func NewRenderer() (*Renderer, error) {
	files, err := fs.Glob(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make(map[string]*template.Template, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".tmpl")
		t, err := template.New(name).Option("missingkey=zero").ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		if t.Lookup("subject") == nil || t.Lookup("body") == nil {
			return nil, fmt.Errorf("template %s must define subject and body", name)
		}
		templates[name] = t
	}

	return &Renderer{templates: templates}, nil
}

// Render builds the message for n addressed to the contact.
// Rendering problems are permanent: retrying cannot fix them.
func (r *Renderer) Render(n *model.Notification, to model.Contact) (Message, error) {
	t, ok := r.templates[n.TemplateName]
	if !ok {
		return Message{}, Permanentf("unknown template %q", n.TemplateName)
	}

	data := make(map[string]string, len(n.TemplateData)+1)
	for k, v := range n.TemplateData {
		data[k] = v
	}
	if data["client_name"] == "" {
		data["client_name"] = to.Name
	}

	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, Permanent(fmt.Errorf("render subject of %s: %w", n.TemplateName, err))
	}
	if err := t.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, Permanent(fmt.Errorf("render body of %s: %w", n.TemplateName, err))
	}

	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Body:    strings.TrimSpace(body.String()),
	}, nil
}

// Text joins subject and body for channels without a subject line.
func (m Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	return m.Subject + "\n\n" + m.Body
}
