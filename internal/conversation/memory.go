package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Rekeyer moves contact-keyed state owned by another store during a migration.
type Rekeyer interface {
	Rekey(ctx context.Context, oldID, newID string) error
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	messages      map[string][]Message
	rekeyers      []Rekeyer
	now           func() time.Time
}

// NewMemoryStore returns an empty store. Migrate also re-keys every rekeyer.
func NewMemoryStore(rekeyers ...Rekeyer) *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		rekeyers:      rekeyers,
		now:           time.Now,
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, contactID, locationID, channel string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[contactID]; ok {
		return c, nil
	}
	now := m.now()
	c := Conversation{
		ContactID:  contactID,
		LocationID: locationID,
		Channel:    channel,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.conversations[contactID] = c
	return c, nil
}

func (m *MemoryStore) Get(_ context.Context, contactID string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[contactID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ContactID]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.ContactID] = append(m.messages[msg.ContactID], msg)
	c.UpdatedAt = msg.CreatedAt
	m.conversations[msg.ContactID] = c
	return msg, nil
}

func (m *MemoryStore) History(_ context.Context, contactID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[contactID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) SetHumanActive(_ context.Context, contactID string) error {
	return m.update(contactID, func(c *Conversation) { c.HumanActive = true })
}

func (m *MemoryStore) StampHandoff(_ context.Context, contactID string, at time.Time) error {
	return m.update(contactID, func(c *Conversation) {
		t := at
		c.LastHandoffAt = &t
	})
}

func (m *MemoryStore) Migrate(ctx context.Context, oldContactID, newContactID, toLocationID string) error {
	m.mu.Lock()
	c, ok := m.conversations[oldContactID]
	if ok {
		delete(m.conversations, oldContactID)
		if existing, found := m.conversations[newContactID]; found {
			c.CreatedAt = existing.CreatedAt
		}
		c.ContactID = newContactID
		c.LocationID = toLocationID
		c.UpdatedAt = m.now()
		m.conversations[newContactID] = c

		moved := m.messages[oldContactID]
		for i := range moved {
			moved[i].ContactID = newContactID
		}
		m.messages[newContactID] = append(moved, m.messages[newContactID]...)
		delete(m.messages, oldContactID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	for _, r := range m.rekeyers {
		if err := r.Rekey(ctx, oldContactID, newContactID); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) update(contactID string, fn func(*Conversation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[contactID]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = m.now()
	m.conversations[contactID] = c
	return nil
}

var _ Store = (*MemoryStore)(nil)
