package mail

import (
	"bytes"
	"html/template"
)

var twoFactorTemplate = template.Must(template.New("2fa").Parse(`
<div style="font-family: sans-serif; text-align: center;">
  <h2>Verification Code</h2>
  <p>Your one-time verification code is:</p>
  <p style="font-size: 24px; font-weight: bold; letter-spacing: 2px;">{{.Code}}</p>
  <p>This code will expire in 10 minutes.</p>
</div>
`))

var invitationTemplate = template.Must(template.New("invite").Parse(`
<div style="font-family: sans-serif;">
  <h2>You're invited to {{.Company}} Invoice Manager</h2>
  <p>An administrator has invited you to join as a Financial Officer.</p>
  <p>Complete your registration at <a href="{{.Link}}">{{.Link}}</a> using this email address and the invitation code:</p>
  <p style="font-size: 24px; font-weight: bold; letter-spacing: 2px;">{{.Code}}</p>
</div>
`))

// TwoFactorCode builds the verification code email.
func TwoFactorCode(to, code string) Message {
	return Message{
		To:       to,
		Subject:  "Your Invoice Manager Verification Code",
		HTMLBody: render(twoFactorTemplate, map[string]string{"Code": code}),
	}
}

// Invitation builds the officer invitation email. link points at the
// registration page.
func Invitation(to, code, company, link string) Message {
	if company == "" {
		company = "Codelits Studio"
	}
	return Message{
		To:      to,
		Subject: "You're Invited to " + company + " Invoice Manager",
		HTMLBody: render(invitationTemplate, map[string]string{
			"Code":    code,
			"Company": company,
			"Link":    link,
		}),
	}
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
