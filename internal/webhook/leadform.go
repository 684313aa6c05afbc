package webhook

import (
	"strings"

	"leadfunnel_backend/internal/leadstate"
)

var leadIndicators = []string{
	"Source URL:",
	"Completé el formulario",
	"elige_tu_campus",
	"first_name:",
	"last_name:",
	"Headline:",
}

var campusKeys = []string{"elige_tu_campus_más_cercano", "elige_tu_campus_mas_cercano", "campus"}

var programKeywords = []string{"interés", "interes", "carrera", "nivel", "grado", "programa"}

// LeadForm is the structured content of a lead-ad submission relayed as a message.
type LeadForm struct {
	Campus    string
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Program   string
	SourceURL string
	Fields    map[string]string
}

// FullName joins first and last name.
func (f LeadForm) FullName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// CampusResolver maps free-form campus references onto the registry.
// *campus.Registry satisfies it.
type CampusResolver interface {
	Resolve(ref string) (string, bool)
	Name(locationID string) string
}

// Captured converts the form into lead fields. Campus answers are
// canonicalized through the registry when they match a known location.
func (f LeadForm) Captured(campuses CampusResolver) leadstate.Captured {
	c := leadstate.Captured{
		Campus:  f.Campus,
		Program: f.Program,
		Name:    f.FullName(),
		Phone:   f.Phone,
		Email:   strings.ToLower(f.Email),
	}
	if c.Campus != "" && campuses != nil {
		if id, ok := campuses.Resolve(c.Campus); ok {
			c.Campus = campuses.Name(id)
		}
	}
	return c
}

// isLeadForm reports whether text carries one of the lead-ad markers.
func isLeadForm(text string) bool {
	for _, ind := range leadIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

// ParseLeadForm extracts a lead form from a message body. Lines are
// "key:: value" or "key: value"; keys are lowercased with spaces turned
// into underscores.
func ParseLeadForm(text string) (LeadForm, bool) {
	if !isLeadForm(text) {
		return LeadForm{}, false
	}

	fields := make(map[string]string)
	var order []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var key, val string
		var found bool
		switch {
		case strings.Contains(line, "::"):
			key, val, found = strings.Cut(line, "::")
		case strings.Contains(line, ":") && !strings.HasPrefix(line, "http"):
			key, val, found = strings.Cut(line, ":")
		}
		if !found {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if _, seen := fields[key]; !seen {
			order = append(order, key)
		}
		fields[key] = val
	}
	if len(fields) == 0 {
		return LeadForm{}, false
	}

	form := LeadForm{
		Campus:    firstField(fields, campusKeys...),
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Phone:     firstField(fields, "phone_number", "phone", "telefono"),
		Email:     firstField(fields, "email", "correo"),
		SourceURL: fields["source_url"],
		Fields:    fields,
	}
	for _, key := range order {
		if isCampusKey(key) {
			continue
		}
		if containsAny(key, programKeywords...) {
			form.Program = fields[key]
			break
		}
	}
	return form, true
}

func firstField(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}

func isCampusKey(key string) bool {
	for _, k := range campusKeys {
		if key == k {
			return true
		}
	}
	return false
}
