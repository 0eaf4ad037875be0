package outreach

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"ig_leadgen/models"
)

// Draft is a prepared outreach message for one lead.
type Draft struct {
	Subject string
	Body    string
}

// Drafter produces an outreach draft for a lead.
type Drafter interface {
	Draft(lead *models.Lead) (Draft, error)
}

// Dispatcher delivers a drafted message. Implementations live outside this
// module (SMTP relay, CRM import, manual review queue).
type Dispatcher interface {
	Dispatch(ctx context.Context, lead *models.Lead, draft Draft) error
}

// TemplateDrafter renders subject and body from Go text templates. The lead
// is the template context, so fields like {{.FullName}} and {{.Tag}} work.
type TemplateDrafter struct {
	subject *template.Template
	body    *template.Template
}

const (
	defaultSubject = `Quick question about {{if .FullName}}{{.FullName}}{{else}}@{{.Username}}{{end}}`

	defaultBody = `Hi {{if .FullName}}{{firstName .FullName}}{{else}}there{{end}},

I came across your profile while looking into the {{.Tag}} space and wanted to reach out.
{{if .Website}}
I also had a look at {{.Website}} and liked what I saw.
{{end}}
Would you be open to a quick chat?

Best regards`
)

var templateFuncs = template.FuncMap{
	"firstName": func(full string) string {
		parts := strings.Fields(full)
		if len(parts) == 0 {
			return full
		}
		return parts[0]
	},
}

// NewTemplateDrafter parses the given templates. Empty strings fall back to
// the built-in defaults.
func NewTemplateDrafter(subjectTmpl, bodyTmpl string) (*TemplateDrafter, error) {
	if subjectTmpl == "" {
		subjectTmpl = defaultSubject
	}
	if bodyTmpl == "" {
		bodyTmpl = defaultBody
	}

	subject, err := template.New("subject").Funcs(templateFuncs).Parse(subjectTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := template.New("body").Funcs(templateFuncs).Parse(bodyTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}

	return &TemplateDrafter{subject: subject, body: body}, nil
}

func (d *TemplateDrafter) Draft(lead *models.Lead) (Draft, error) {
	var subject, body bytes.Buffer
	if err := d.subject.Execute(&subject, lead); err != nil {
		return Draft{}, fmt.Errorf("render subject: %w", err)
	}
	if err := d.body.Execute(&body, lead); err != nil {
		return Draft{}, fmt.Errorf("render body: %w", err)
	}
	return Draft{
		Subject: strings.TrimSpace(subject.String()),
		Body:    strings.TrimSpace(body.String()),
	}, nil
}
