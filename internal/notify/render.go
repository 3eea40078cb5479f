// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package notify

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/samber/oops"
)

// Template names.
const (
	TemplateSignupCode      = "signup_code"
	TemplateEmailChangeCode = "email_change_code"
	TemplatePasswordReset   = "password_reset"
)

//go:embed templates/*.html
var templatesFS embed.FS

// MailData is the data every template receives.
type MailData struct {
	Product   string
	Code      string
	ResetURL  string
	ExpiresIn string
	Year      int
}

// Renderer renders the embedded mail templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data MailData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}
