package delivery

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// Content is the rendered form of a Message.
type Content struct {
	Subject string
	Text    string
	HTML    string
	SMS     string
}

type purposeCopy struct {
	subject string
	action  string
}

var purposeCopies = map[entity.Purpose]purposeCopy{
	entity.PurposeLogin:        {subject: "Your login verification code", action: "login verification"},
	entity.PurposeSetup:        {subject: "Enable two-factor authentication", action: "two-factor activation"},
	entity.PurposeDisable:      {subject: "Disable two-factor authentication", action: "two-factor deactivation"},
	entity.PurposeRegistration: {subject: "Confirm your registration", action: "registration"},
}

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(
		"Hello {{.Name}},\n\n" +
			"Your {{.Action}} code is {{.Code}}. It expires in {{.Minutes}} minutes.\n\n" +
			"If you did not request this code, you can ignore this message.\n"))

	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(
		`<p>Hello {{.Name}},</p>` +
			`<p>Your {{.Action}} code is <strong>{{.Code}}</strong>.</p>` +
			`<p>It expires in {{.Minutes}} minutes.</p>` +
			`<p>If you did not request this code, you can ignore this message.</p>`))

	smsTmpl = texttemplate.Must(texttemplate.New("sms").Parse(
		"{{.Code}} is your {{.Action}} code. It expires in {{.Minutes}} min."))
)

type templateData struct {
	Name    string
	Action  string
	Code    string
	Minutes int
}

// Render builds the subject and bodies for msg.
func Render(msg Message) (Content, error) {
	pc, ok := purposeCopies[msg.Purpose]
	if !ok {
		return Content{}, fmt.Errorf("no message copy for purpose %q", msg.Purpose)
	}

	name := msg.RecipientName
	if name == "" {
		name = "there"
	}
	data := templateData{Name: name, Action: pc.action, Code: msg.Code, Minutes: minutes(msg.ExpiresIn)}

	var text, html, sms bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Content{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("render html body: %w", err)
	}
	if err := smsTmpl.Execute(&sms, data); err != nil {
		return Content{}, fmt.Errorf("render sms body: %w", err)
	}

	return Content{Subject: pc.subject, Text: text.String(), HTML: html.String(), SMS: sms.String()}, nil
}

// minutes rounds up so a code never looks shorter-lived than it is.
func minutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
