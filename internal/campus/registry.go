// Package campus holds the location registry: which CRM sub-account belongs
// to which campus, how contacts refer to it, and where its credential lives.
package campus

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Program is one educational level offered at a campus.
type Program struct {
	Name        string `yaml:"name"`
	ProgramType string `yaml:"program_type"`
	WebsiteURL  string `yaml:"website_url"`
}

// Campus is a location with its own CRM sub-account and advisor pool.
type Campus struct {
	LocationID         string    `yaml:"location_id"`
	Name               string    `yaml:"name"`
	Normalized         string    `yaml:"normalized"`
	Keywords           []string  `yaml:"keywords"`
	TokenEnv           string    `yaml:"token_env"`
	Address            string    `yaml:"address"`
	Phone              string    `yaml:"phone"`
	WebsiteURL         string    `yaml:"website_url"`
	DefaultBookingLink string    `yaml:"default_booking_link"`
	Programs           []Program `yaml:"programs"`
}

type file struct {
	Campuses []Campus `yaml:"campuses"`
}

type keyword struct {
	text       string
	locationID string
}

// Registry is an immutable lookup over the configured campuses.
type Registry struct {
	byLocation map[string]Campus
	byName     map[string]string
	keywords   []keyword
	order      []string
	getenv     func(string) string
}

// Load reads the registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campus registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse campus registry: %w", err)
	}
	return New(f.Campuses)
}

// New builds a registry from already-decoded campuses.
func New(campuses []Campus) (*Registry, error) {
	if len(campuses) == 0 {
		return nil, fmt.Errorf("campus registry is empty")
	}

	r := &Registry{
		byLocation: make(map[string]Campus, len(campuses)),
		byName:     make(map[string]string),
		getenv:     os.Getenv,
	}
	for _, c := range campuses {
		if c.LocationID == "" || c.Name == "" {
			return nil, fmt.Errorf("campus entry needs location_id and name")
		}
		if _, dup := r.byLocation[c.LocationID]; dup {
			return nil, fmt.Errorf("duplicate location_id %q", c.LocationID)
		}
		if c.Normalized == "" {
			c.Normalized = strings.ReplaceAll(strings.ToLower(c.Name), " ", "")
		}
		r.byLocation[c.LocationID] = c
		r.order = append(r.order, c.LocationID)

		r.byName[strings.ToLower(c.Name)] = c.LocationID
		r.byName[c.Normalized] = c.LocationID
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			r.byName[kw] = c.LocationID
			r.keywords = append(r.keywords, keyword{text: kw, locationID: c.LocationID})
		}
	}

	// Longest keyword first so "poza rica" wins over "poza".
	sort.SliceStable(r.keywords, func(i, j int) bool {
		return len(r.keywords[i].text) > len(r.keywords[j].text)
	})
	return r, nil
}

// Get returns the campus for a location id.
func (r *Registry) Get(locationID string) (Campus, bool) {
	c, ok := r.byLocation[locationID]
	return c, ok
}

// Name returns the campus name for a location id, or "" when unknown.
func (r *Registry) Name(locationID string) string {
	return r.byLocation[locationID].Name
}

// LocationIDs returns every configured location in file order.
func (r *Registry) LocationIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns campus display names in file order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byLocation[id].Name)
	}
	return out
}

// Resolve maps a free-form campus reference (name, normalized name or keyword)
// to its location id. Spaces are ignored as a fallback, so "PozaRica" resolves.
func (r *Registry) Resolve(ref string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(ref))
	if key == "" {
		return "", false
	}
	if id, ok := r.byName[key]; ok {
		return id, true
	}
	compact := strings.ReplaceAll(key, " ", "")
	for _, id := range r.order {
		if r.byLocation[id].Normalized == compact {
			return id, true
		}
	}
	return "", false
}

// Detect finds the first campus keyword mentioned in text.
func (r *Registry) Detect(text string) (string, bool) {
	lower := " " + normalizeWords(text) + " "
	for _, kw := range r.keywords {
		if strings.Contains(lower, " "+kw.text+" ") {
			return kw.locationID, true
		}
	}
	return "", false
}

// Token returns the CRM credential for a location from its configured env variable.
func (r *Registry) Token(locationID string) string {
	c, ok := r.byLocation[locationID]
	if !ok || c.TokenEnv == "" {
		return ""
	}
	return r.getenv(c.TokenEnv)
}

// DefaultBookingLink is the location-level fallback path when no advisor is available.
func (r *Registry) DefaultBookingLink(locationID string) string {
	return r.byLocation[locationID].DefaultBookingLink
}

// Hosts lists the distinct hosts of every campus and program website and
// default booking link. These are the URLs replies may carry as written.
func (r *Registry) Hosts() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" {
			return
		}
		host := strings.ToLower(u.Host)
		if !seen[host] {
			seen[host] = true
			out = append(out, host)
		}
	}
	for _, id := range r.order {
		c := r.byLocation[id]
		add(c.WebsiteURL)
		add(c.DefaultBookingLink)
		for _, p := range c.Programs {
			add(p.WebsiteURL)
		}
	}
	return out
}

func normalizeWords(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', ';', ':', '!', '?', '¡', '¿', '(', ')', '"', '\'':
			return true
		}
		return false
	})
	return strings.Join(fields, " ")
}
