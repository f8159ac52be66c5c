// Package prompt holds every instruction text sent to the model.
// Long persona and image templates are embedded from templates/; short task
// prompts are built inline.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

var templates = template.Must(template.ParseFS(embeddedTemplates, "templates/*.tmpl"))

// Greeting is the model turn that opens every fresh conversation.
const Greeting = "Saya siap membantu. Apa yang ingin Anda tanyakan?"

// DefaultPersona is the assistant name used in the system prompt.
const DefaultPersona = "GHOST"

// Clock renders the current date for the system prompt.
type Clock struct {
	Location *time.Location
	Label    string // zone label appended to the time, e.g. WIB
	Now      func() time.Time
}

// Format renders t as "Monday, 02 January 2006, 15:04:05 WIB".
func (c Clock) Format(t time.Time) string {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	s := t.In(loc).Format("Monday, 02 January 2006, 15:04:05")
	if c.Label != "" {
		s += " " + c.Label
	}
	return s
}

// Current renders the current time.
func (c Clock) Current() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return c.Format(now())
}

// System renders the persona system prompt stamped with the current date.
func System(persona string, clock Clock) string {
	if persona == "" {
		persona = DefaultPersona
	}
	return render("system.tmpl", map[string]string{
		"Persona": persona,
		"Now":     clock.Current(),
	})
}

// ImagePrompt wraps a literal image description in the photorealistic
// prompt-writing template.
func ImagePrompt(description string) string {
	return render("image.tmpl", map[string]string{"Description": description})
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are embedded and parsed at init; a failure here is a bug.
		panic(fmt.Sprintf("prompt: render %s: %v", name, err))
	}
	return buf.String()
}
