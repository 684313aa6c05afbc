package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/phone"
)

// ProgramFieldKey is the custom field holding the program of interest.
const ProgramFieldKey = "Oferta Educativa De Interés"

type Contact struct {
	ID         string   `json:"id"`
	LocationID string   `json:"locationId"`
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Tags       []string `json:"tags"`
	AssignedTo string   `json:"assignedTo"`
	Source     string   `json:"source"`
}

// ContactFields are the lead fields pushed to a contact. Empty fields are not sent.
type ContactFields struct {
	FullName string
	Phone    string
	Email    string
	Program  string
}

// NewContact describes a contact created under another location.
type NewContact struct {
	ContactFields
	Source string
	Tags   []string
}

type customField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type contactPayload struct {
	LocationID   string        `json:"locationId,omitempty"`
	FirstName    string        `json:"firstName,omitempty"`
	LastName     string        `json:"lastName,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Email        string        `json:"email,omitempty"`
	Source       string        `json:"source,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	CustomFields []customField `json:"customFields,omitempty"`
}

type contactEnvelope struct {
	Contact *Contact `json:"contact"`
}

func (f ContactFields) payload() contactPayload {
	var p contactPayload
	if name := strings.Fields(f.FullName); len(name) > 0 {
		p.FirstName = name[0]
		p.LastName = strings.Join(name[1:], " ")
	}
	if f.Phone != "" {
		p.Phone = phone.ForCRM(f.Phone)
	}
	p.Email = strings.TrimSpace(f.Email)
	if f.Program != "" {
		p.CustomFields = []customField{{Key: ProgramFieldKey, Value: f.Program}}
	}
	return p
}

// IsEmpty reports whether there is nothing to push.
func (f ContactFields) IsEmpty() bool {
	return f == ContactFields{}
}

// GetContact loads one contact.
func (c *Client) GetContact(ctx context.Context, locationID, contactID string) (Contact, error) {
	var env contactEnvelope
	err := c.do(ctx, request{
		op:         "get_contact",
		method:     http.MethodGet,
		path:       "/contacts/" + url.PathEscape(contactID),
		version:    versionContacts,
		locationID: locationID,
		out:        &env,
	})
	if err != nil {
		return Contact{}, err
	}
	if env.Contact == nil {
		return Contact{}, apperr.NotFound("contact not found").WithOp("crm.get_contact")
	}
	return *env.Contact, nil
}

// AssignedUserID returns the CRM user assigned to a contact.
func (c *Client) AssignedUserID(ctx context.Context, locationID, contactID string) (string, error) {
	contact, err := c.GetContact(ctx, locationID, contactID)
	if err != nil {
		return "", err
	}
	return contact.AssignedTo, nil
}

// UpdateContact pushes the non-empty lead fields to the contact.
func (c *Client) UpdateContact(ctx context.Context, locationID, contactID string, fields ContactFields) error {
	if fields.IsEmpty() {
		return nil
	}
	return c.do(ctx, request{
		op:         "update_contact",
		method:     http.MethodPut,
		path:       "/contacts/" + url.PathEscape(contactID),
		version:    versionContacts,
		locationID: locationID,
		body:       fields.payload(),
	})
}

// CreateContact creates a contact under locationID and returns its id.
func (c *Client) CreateContact(ctx context.Context, locationID string, nc NewContact) (string, error) {
	p := nc.payload()
	p.LocationID = locationID
	p.Source = nc.Source
	p.Tags = nc.Tags

	var env contactEnvelope
	err := c.do(ctx, request{
		op:         "create_contact",
		method:     http.MethodPost,
		path:       "/contacts/",
		version:    versionContacts,
		locationID: locationID,
		body:       p,
		out:        &env,
	})
	if err != nil {
		return "", err
	}
	if env.Contact == nil || env.Contact.ID == "" {
		return "", apperr.Internal("create contact returned no id").WithOp("crm.create_contact")
	}
	return env.Contact.ID, nil
}

// FindDuplicate looks up an existing contact in locationID by email, then phone.
func (c *Client) FindDuplicate(ctx context.Context, locationID string, fields ContactFields) (string, bool, error) {
	lookups := make([]url.Values, 0, 2)
	if fields.Email != "" {
		lookups = append(lookups, url.Values{"locationId": {locationID}, "email": {fields.Email}})
	}
	if fields.Phone != "" {
		lookups = append(lookups, url.Values{"locationId": {locationID}, "number": {phone.ForCRM(fields.Phone)}})
	}
	for _, q := range lookups {
		var env contactEnvelope
		err := c.do(ctx, request{
			op:         "find_duplicate",
			method:     http.MethodGet,
			path:       "/contacts/search/duplicate?" + q.Encode(),
			version:    versionContacts,
			locationID: locationID,
			out:        &env,
		})
		if err != nil {
			return "", false, err
		}
		if env.Contact != nil && env.Contact.ID != "" {
			return env.Contact.ID, true, nil
		}
	}
	return "", false, nil
}

type tagsPayload struct {
	Tags []string `json:"tags"`
}

// AddTags adds tags to a contact.
func (c *Client) AddTags(ctx context.Context, locationID, contactID string, tags ...string) error {
	return c.tags(ctx, http.MethodPost, "add_tags", locationID, contactID, tags)
}

// RemoveTags removes tags from a contact.
func (c *Client) RemoveTags(ctx context.Context, locationID, contactID string, tags ...string) error {
	return c.tags(ctx, http.MethodDelete, "remove_tags", locationID, contactID, tags)
}

func (c *Client) tags(ctx context.Context, method, op, locationID, contactID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return c.do(ctx, request{
		op:         op,
		method:     method,
		path:       "/contacts/" + url.PathEscape(contactID) + "/tags",
		version:    versionContacts,
		locationID: locationID,
		body:       tagsPayload{Tags: tags},
	})
}

// AddNote posts a note on a contact.
func (c *Client) AddNote(ctx context.Context, locationID, contactID, body string) error {
	return c.do(ctx, request{
		op:         "add_note",
		method:     http.MethodPost,
		path:       "/contacts/" + url.PathEscape(contactID) + "/notes",
		version:    versionContacts,
		locationID: locationID,
		body:       map[string]string{"body": body},
	})
}
