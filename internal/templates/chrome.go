package templates

import (
	"bytes"
	"html/template"
	"strings"
)

// layout is the view model of the shared email chrome.
type layout struct {
	Lang             string
	AppName          string
	Initial          string
	Subject          string
	Greeting         string
	Lines            []string
	Details          []detailRow
	ActionLabel      string
	ActionURL        string
	Footer           string
	UnsubscribeLabel string
	UnsubscribeURL   string
}

type detailRow struct {
	Label string
	Value string
}

// emailTmpl is the HTML wrapper applied to every outgoing email. All values
// are auto-escaped by html/template.
var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f5f5f4;
     font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation"
         style="background-color:#f5f5f4;padding:40px 16px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" role="presentation"
               style="max-width:600px;width:100%;">

          <!-- Header -->
          <tr>
            <td style="background-color:#134e4a;padding:28px 40px;border-radius:12px 12px 0 0;">
              <table cellpadding="0" cellspacing="0" role="presentation">
                <tr>
                  <td style="vertical-align:middle;padding-right:12px;">
                    <div style="width:36px;height:36px;background:linear-gradient(135deg,#14b8a6,#0d9488);
                                border-radius:8px;display:inline-block;text-align:center;line-height:36px;
                                font-size:20px;font-weight:900;color:#ffffff;">{{.Initial}}</div>
                  </td>
                  <td style="vertical-align:middle;">
                    <span style="font-size:20px;font-weight:700;color:#ffffff;letter-spacing:-0.3px;">{{.AppName}}</span>
                  </td>
                </tr>
              </table>
            </td>
          </tr>

          <!-- Subject bar -->
          <tr>
            <td style="background-color:#115e59;padding:16px 40px;border-left:3px solid #2dd4bf;">
              <p style="margin:0;font-size:15px;font-weight:600;color:#f0fdfa;">{{.Subject}}</p>
            </td>
          </tr>

          <!-- Body -->
          <tr>
            <td style="background-color:#ffffff;padding:36px 40px;font-size:14px;line-height:1.7;color:#374151;">
              <p style="margin:0 0 16px;font-size:16px;font-weight:600;color:#111827;">{{.Greeting}}</p>
              {{- range .Lines}}
              <p style="margin:0 0 12px;word-break:break-word;">{{.}}</p>
              {{- end}}
              {{- if .Details}}
              <table width="100%" cellpadding="0" cellspacing="0" role="presentation"
                     style="margin:16px 0;border:1px solid #e5e7eb;border-radius:8px;">
                {{- range .Details}}
                <tr>
                  <td style="padding:8px 16px;color:#6b7280;width:40%;">{{.Label}}</td>
                  <td style="padding:8px 16px;color:#111827;font-weight:600;">{{.Value}}</td>
                </tr>
                {{- end}}
              </table>
              {{- end}}
              <table cellpadding="0" cellspacing="0" role="presentation" style="margin-top:24px;">
                <tr>
                  <td style="background-color:#0d9488;border-radius:8px;">
                    <a href="{{.ActionURL}}"
                       style="display:inline-block;padding:12px 24px;font-size:14px;font-weight:600;
                              color:#ffffff;text-decoration:none;">{{.ActionLabel}}</a>
                  </td>
                </tr>
              </table>
            </td>
          </tr>

          <!-- Footer -->
          <tr>
            <td style="background-color:#f9fafb;padding:20px 40px;
                       border-top:1px solid #e5e7eb;border-radius:0 0 12px 12px;">
              <p style="margin:0 0 4px;font-size:12px;color:#9ca3af;">{{.Footer}}</p>
              <p style="margin:0;font-size:12px;">
                <a href="{{.UnsubscribeURL}}" style="color:#0d9488;text-decoration:none;">{{.UnsubscribeLabel}}</a>
              </p>
            </td>
          </tr>

        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`))

func renderHTML(l layout) (string, error) {
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, l); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderText builds the plain-text alternative with the same content as the
// HTML body.
func renderText(l layout) string {
	var b strings.Builder
	b.WriteString(l.Greeting)
	b.WriteString("\n\n")
	for _, line := range l.Lines {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	if len(l.Details) > 0 {
		for _, d := range l.Details {
			b.WriteString(d.Label + ": " + d.Value + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(l.ActionLabel + ": " + l.ActionURL + "\n\n")
	b.WriteString("-- \n")
	b.WriteString(l.Footer + "\n")
	b.WriteString(l.UnsubscribeLabel + ": " + l.UnsubscribeURL + "\n")
	return b.String()
}
