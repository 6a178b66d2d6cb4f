// Package assets holds the email templates embedded in the gateway binary.
// Templates are markdown bodies rendered to HTML with goldmark and wrapped in a
// shared inline-styled layout that email clients can display.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
)

//go:embed email
var emailFS embed.FS

// FrontendURLVar names the {{FRONTEND_URL}} placeholder filled with the
// configured frontend URL.
const FrontendURLVar = "FRONTEND_URL"

// WelcomeTemplate is the newsletter confirmation email.
const WelcomeTemplate = "welcome"

var layout = template.Must(template.ParseFS(emailFS, "email/layout.html"))

// Email is a rendered message body.
type Email struct {
	Subject string
	HTML    string
}

// RenderEmail renders the named markdown template. Placeholders of the form
// {{KEY}} are substituted from vars before markdown conversion.
func RenderEmail(name, subject string, vars map[string]string) (*Email, error) {
	md, err := emailFS.ReadFile("email/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("reading email template %q: %w", name, err)
	}

	body := string(md)
	for key, value := range vars {
		body = strings.ReplaceAll(body, "{{"+key+"}}", value)
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &htmlBuf); err != nil {
		return nil, fmt.Errorf("converting email template %q: %w", name, err)
	}

	data := struct {
		Subject string
		Content template.HTML
	}{
		Subject: subject,
		Content: template.HTML(htmlBuf.String()),
	}

	var out bytes.Buffer
	if err := layout.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering email layout: %w", err)
	}
	return &Email{Subject: subject, HTML: out.String()}, nil
}

// Welcome renders the newsletter confirmation email linking to frontendURL.
func Welcome(subject, frontendURL string) (*Email, error) {
	return RenderEmail(WelcomeTemplate, subject, map[string]string{
		FrontendURLVar: frontendURL,
	})
}
