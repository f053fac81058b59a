package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

type emailData struct {
	Summary     LeadSummary
	Details     []detailRow
	Attribution []detailRow
	AdminURL    string
	Received    string
}

var leadHTMLTemplate = template.Must(template.New("lead").Parse(`<!doctype html>
<html lang="en">
  <head><meta charset="UTF-8"><title>New lead</title></head>
  <body style="font-family: Helvetica, sans-serif; background-color: #f4f5f6; margin: 0; padding: 24px;">
    <table role="presentation" cellpadding="0" cellspacing="0" style="max-width: 600px; margin: 0 auto; background: #ffffff; border: 1px solid #eaebed; border-radius: 16px; width: 100%;">
      <tr><td style="padding: 24px;">
        <h2 style="margin-top: 0;">New {{.Summary.ServiceType}} enquiry</h2>
        <p><strong>{{.Summary.Name}}</strong></p>
        <table role="presentation" cellpadding="4" cellspacing="0">
          {{with .Summary.Email}}<tr><td>Email</td><td><a href="mailto:{{.}}">{{.}}</a></td></tr>{{end}}
          {{with .Summary.Phone}}<tr><td>Phone</td><td>{{.}}</td></tr>{{end}}
          {{with .Summary.Postcode}}<tr><td>Postcode</td><td>{{.}}</td></tr>{{end}}
          {{with .Summary.Address}}<tr><td>Address</td><td>{{.}}</td></tr>{{end}}
          <tr><td>Received</td><td>{{.Received}}</td></tr>
        </table>
        {{if .Details}}
        <h3>Details</h3>
        <table role="presentation" cellpadding="4" cellspacing="0">
          {{range .Details}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>{{end}}
        </table>
        {{end}}
        {{if .Attribution}}
        <h3>Source</h3>
        <table role="presentation" cellpadding="4" cellspacing="0">
          {{range .Attribution}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>{{end}}
        </table>
        {{end}}
        {{with .AdminURL}}<p><a href="{{.}}">Open in admin</a></p>{{end}}
      </td></tr>
    </table>
  </body>
</html>`))

var leadTextTemplate = texttemplate.Must(texttemplate.New("lead").Parse(`New {{.Summary.ServiceType}} enquiry

Name: {{.Summary.Name}}
{{with .Summary.Email}}Email: {{.}}
{{end}}{{with .Summary.Phone}}Phone: {{.}}
{{end}}{{with .Summary.Postcode}}Postcode: {{.}}
{{end}}{{with .Summary.Address}}Address: {{.}}
{{end}}Received: {{.Received}}
{{if .Details}}
Details
{{range .Details}}  {{.Label}}: {{.Value}}
{{end}}{{end}}{{if .Attribution}}
Source
{{range .Attribution}}  {{.Label}}: {{.Value}}
{{end}}{{end}}{{with .AdminURL}}
{{.}}
{{end}}`))

func subjectFor(s LeadSummary) string {
	return fmt.Sprintf("New %s lead: %s", humanize(s.ServiceType), s.Name)
}

// render returns the html and plain-text bodies for summary.
func render(s LeadSummary, adminURL string) (string, string, error) {
	data := emailData{
		Summary:     s,
		Details:     s.details(),
		Attribution: s.attributionRows(),
		Received:    s.CreatedAt.UTC().Format("02 Jan 2006 15:04 MST"),
	}
	if adminURL != "" && s.LeadID != "" {
		data.AdminURL = strings.TrimRight(adminURL, "/") + "/leads/" + s.LeadID
	}

	var html bytes.Buffer
	if err := leadHTMLTemplate.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	var text bytes.Buffer
	if err := leadTextTemplate.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	return html.String(), text.String(), nil
}
