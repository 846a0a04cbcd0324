package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

var templates = template.Must(template.New("notify").Option("missingkey=zero").Parse(`
{{define "registration"}}Hello {{.name}},

Your account has been created. Welcome to the platform!
{{end}}
{{define "email_verify"}}Hello {{.name}},

Please confirm your email address by opening the link below:

{{.verification_url}}
{{end}}
{{define "password_reset"}}Hello {{.name}},

We received a request to reset your password. Open the link below to choose a new one:

{{.reset_url}}

If you did not request a reset you can ignore this email.
{{end}}
`))

// Render fills Body from Template. Jobs without a template are returned unchanged.
func Render(job domain.NotificationJob) (domain.NotificationJob, error) {
	if job.Template == "" {
		return job, nil
	}
	if templates.Lookup(job.Template) == nil {
		return job, fmt.Errorf("notify: unknown template %q", job.Template)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, job.Template, job.Context); err != nil {
		return job, fmt.Errorf("notify: execute %s: %w", job.Template, err)
	}
	job.Body = buf.String()
	return job, nil
}
