package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

const (
	TemplateVerificationCode = "verification-code"
	TemplatePatientReport    = "patient-report"
)

// Template pairs an HTML and a plain-text rendering of the same email.
type Template struct {
	ID      string
	Subject *texttemplate.Template
	HTML    *htmltemplate.Template
	Text    *texttemplate.Template
}

// Rendered is the output of TemplateEngine.Render.
type Rendered struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// TemplateEngine holds email templates keyed by ID.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.Register(TemplateVerificationCode, verificationSubject, verificationHTML, verificationText)
	e.Register(TemplatePatientReport, reportSubject, reportHTML, reportText)
	return e
}

// Register parses and stores a template, replacing any with the same ID. It
// panics on a parse error since templates are compiled in.
func (e *TemplateEngine) Register(id, subject, html, text string) {
	t := &Template{
		ID:      id,
		Subject: texttemplate.Must(texttemplate.New(id + ".subject").Parse(subject)),
		HTML:    htmltemplate.Must(htmltemplate.New(id + ".html").Parse(html)),
		Text:    texttemplate.Must(texttemplate.New(id + ".txt").Parse(text)),
	}
	e.mu.Lock()
	e.templates[id] = t
	e.mu.Unlock()
}

func (e *TemplateEngine) Render(id string, data any) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", id)
	}

	var subj, html, text bytes.Buffer
	if err := t.Subject.Execute(&subj, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := t.HTML.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", id, err)
	}
	if err := t.Text.Execute(&text, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s text: %w", id, err)
	}
	return Rendered{Subject: subj.String(), HTMLBody: html.String(), TextBody: text.String()}, nil
}

// VerificationData feeds the verification-code template.
type VerificationData struct {
	Code         string
	ExpiresHours int
	Year         int
}

const verificationSubject = `Your Verification Code for Healthcare Access`

const verificationHTML = `<html>
  <body style="font-family: Arial, sans-serif;">
    <h2 style="color: #2563eb;">Healthcare Access Verification</h2>
    <p>Your verification code is:</p>
    <div style="background: #f3f4f6; padding: 10px; border-radius: 5px; display: inline-block; margin: 10px 0;">
      <h3 style="margin: 0; color: #2563eb; font-size: 24px;">{{.Code}}</h3>
    </div>
    <p style="color: #6b7280;">This code expires in {{.ExpiresHours}} hours.</p>
    <hr style="border: 0; border-top: 1px solid #e5e7eb;">
    <small style="color: #9ca3af;">&copy; {{.Year}} Healthcare System</small>
  </body>
</html>`

const verificationText = `Healthcare Access Verification

Your verification code is: {{.Code}}

This code will expire in {{.ExpiresHours}} hours.

If you didn't request this, please ignore this email.
`

// ReportRow is one labelled value in a report section.
type ReportRow struct {
	Label string
	Value string
}

// ReportSection is a titled block of rows.
type ReportSection struct {
	Title string
	Rows  []ReportRow
}

// ReportData feeds the patient-report template.
type ReportData struct {
	PatientID   int64
	FirstName   string
	LastName    string
	Sections    []ReportSection
	DoctorName  string
	GeneratedAt string
}

const reportSubject = `Diagnostic Report for {{.FirstName}} {{.LastName}} - Healthcare System`

const reportHTML = `<html>
  <body style="font-family: Arial, sans-serif; color: #111827;">
    <h2 style="color: #2563eb;">Patient Diagnostic Report</h2>
    {{range .Sections}}
    <h3 style="border-bottom: 1px solid #e5e7eb;">{{.Title}}</h3>
    <table style="border-collapse: collapse;">
      {{range .Rows}}<tr><td style="padding: 4px 12px 4px 0;"><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
      {{end}}
    </table>
    {{end}}
    <p>Attending Physician: <strong>{{.DoctorName}}</strong></p>
    <small style="color: #6b7280;">Report generated on {{.GeneratedAt}}</small>
  </body>
</html>`

const reportText = `Patient Diagnostic Report
{{range .Sections}}
{{.Title}}
{{range .Rows}}  {{.Label}}: {{.Value}}
{{end}}{{end}}
Attending Physician: {{.DoctorName}}
Report generated on {{.GeneratedAt}}
`
