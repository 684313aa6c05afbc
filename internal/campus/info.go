package campus

import (
	"fmt"
	"strings"
)

var programOrder = []string{"preescolar", "primaria", "secundaria", "bachillerato"}

// Describe renders the campus card handed to the generation agent.
func (c Campus) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plantel: %s\n", c.Name)
	fmt.Fprintf(&b, "Dirección: %s\n", orConsult(c.Address))
	fmt.Fprintf(&b, "Teléfono: %s\n", orConsult(c.Phone))
	if c.WebsiteURL != "" {
		fmt.Fprintf(&b, "Sitio web: %s\n", c.WebsiteURL)
	}

	grouped := make(map[string][]Program)
	for _, p := range c.Programs {
		t := strings.ToLower(p.ProgramType)
		if t == "" {
			t = "nivel"
		}
		grouped[t] = append(grouped[t], p)
	}
	if len(grouped) == 0 {
		return strings.TrimSpace(b.String())
	}

	b.WriteString("\nNiveles educativos disponibles:\n")
	seen := make(map[string]bool, len(programOrder))
	write := func(t string) {
		for _, p := range grouped[t] {
			if p.WebsiteURL != "" {
				fmt.Fprintf(&b, "- %s → %s\n", p.Name, p.WebsiteURL)
			} else {
				fmt.Fprintf(&b, "- %s\n", p.Name)
			}
		}
		seen[t] = true
	}
	for _, t := range programOrder {
		write(t)
	}
	for _, p := range c.Programs {
		if t := strings.ToLower(p.ProgramType); !seen[t] {
			write(t)
		}
	}
	return strings.TrimSpace(b.String())
}

func orConsult(v string) string {
	if strings.TrimSpace(v) == "" {
		return "Consultar"
	}
	return v
}
