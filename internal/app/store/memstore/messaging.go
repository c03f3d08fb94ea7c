package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/store/audit"
	usermessagestore "github.com/dalemusser/stratacomm/internal/app/store/usermessages"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// Messages mirrors messagestore.Store.
type Messages struct{ s *Store }

func (m *Messages) Insert(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg.To = clone(msg.To)
	m.s.messages[msg.ID] = msg
	return nil
}

func (m *Messages) GetByID(_ context.Context, id string) (models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return models.Message{}, mongo.ErrNoDocuments
	}
	return msg, nil
}

func (m *Messages) GetByIDs(_ context.Context, ids []string) ([]models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []models.Message
	for _, id := range ids {
		if msg, ok := m.s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Count returns the number of stored messages.
func (m *Messages) Count() int {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return len(m.s.messages)
}

// UserMessages mirrors usermessagestore.Store.
type UserMessages struct{ s *Store }

func (u *UserMessages) Create(ctx context.Context, l models.UserMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.links {
		if existing.MessageID == l.MessageID && existing.UserID == l.UserID {
			return usermessagestore.ErrDuplicateLink
		}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	u.s.links = append(u.s.links, l)
	return nil
}

// ListByUser returns newest first. Links created in the same instant keep
// reverse insertion order.
func (u *UserMessages) ListByUser(_ context.Context, userID string, limit int) ([]models.UserMessage, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	var out []models.UserMessage
	for i := len(u.s.links) - 1; i >= 0; i-- {
		if u.s.links[i].UserID == userID {
			out = append(out, u.s.links[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (u *UserMessages) ListByMessage(_ context.Context, messageID string) ([]models.UserMessage, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	var out []models.UserMessage
	for _, l := range u.s.links {
		if l.MessageID == messageID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (u *UserMessages) MarkRead(_ context.Context, userID, messageID string, at time.Time) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for i := range u.s.links {
		l := &u.s.links[i]
		if l.UserID == userID && l.MessageID == messageID {
			if !l.Read {
				l.Read = true
				t := at
				l.ReadAt = &t
			}
			return true, nil
		}
	}
	return false, nil
}

func (u *UserMessages) CountUnread(_ context.Context, userID string) (int64, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	var n int64
	for _, l := range u.s.links {
		if l.UserID == userID && !l.Read {
			n++
		}
	}
	return n, nil
}

// Groups mirrors groupstore.Store.
type Groups struct{ s *Store }

func (g *Groups) Create(_ context.Context, grp models.Group) (models.Group, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	now := time.Now().UTC()
	grp.NameCI = text.Fold(grp.Name)
	grp.Members = clone(grp.Members)
	grp.Admins = clone(grp.Admins)
	grp.CreatedAt = now
	grp.UpdatedAt = now
	g.s.groups[grp.ID] = grp
	return grp, nil
}

func (g *Groups) GetByID(_ context.Context, id string) (models.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	grp, ok := g.s.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	grp.Members = clone(grp.Members)
	grp.Admins = clone(grp.Admins)
	return grp, nil
}

func (g *Groups) ListByMember(_ context.Context, userID string) ([]models.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	var out []models.Group
	for _, grp := range g.s.groups {
		if contains(grp.Members, userID) {
			out = append(out, grp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// mutate applies fn to the group under the write lock. fn returns false to
// leave the group unchanged and report no match.
func (g *Groups) mutate(id string, fn func(grp *models.Group) bool) bool {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	grp, ok := g.s.groups[id]
	if !ok || !fn(&grp) {
		return false
	}
	grp.UpdatedAt = time.Now().UTC()
	g.s.groups[id] = grp
	return true
}

func lastAdmin(grp *models.Group, userID string) bool {
	return len(grp.Admins) == 1 && grp.Admins[0] == userID
}

func (g *Groups) AddMember(_ context.Context, id, userID string) (bool, error) {
	return g.mutate(id, func(grp *models.Group) bool {
		if !contains(grp.Members, userID) {
			grp.Members = append(clone(grp.Members), userID)
		}
		return true
	}), nil
}

func (g *Groups) RemoveMember(_ context.Context, id, userID string) (bool, error) {
	return g.mutate(id, func(grp *models.Group) bool {
		if lastAdmin(grp, userID) {
			return false
		}
		grp.Members = without(grp.Members, userID)
		grp.Admins = without(grp.Admins, userID)
		return true
	}), nil
}

func (g *Groups) AddAdmin(_ context.Context, id, userID string) (bool, error) {
	return g.mutate(id, func(grp *models.Group) bool {
		if !contains(grp.Members, userID) {
			return false
		}
		if !contains(grp.Admins, userID) {
			grp.Admins = append(clone(grp.Admins), userID)
		}
		return true
	}), nil
}

func (g *Groups) RemoveAdmin(_ context.Context, id, userID string) (bool, error) {
	return g.mutate(id, func(grp *models.Group) bool {
		if lastAdmin(grp, userID) {
			return false
		}
		grp.Admins = without(grp.Admins, userID)
		return true
	}), nil
}

// Collabs mirrors collabstore.Store.
type Collabs struct{ s *Store }

func (c *Collabs) Open(_ context.Context, taskID string, participants []string) (models.Collaboration, []string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	now := time.Now().UTC()
	col, exists := c.s.collabs[taskID]
	if !exists {
		col = models.Collaboration{
			TaskID:       taskID,
			Participants: []string{},
			Messages:     []string{},
			Files:        []models.CollaborationFile{},
			CreatedAt:    now,
		}
	}

	var added []string
	merged := clone(col.Participants)
	for _, p := range participants {
		if !contains(merged, p) {
			merged = append(merged, p)
			added = append(added, p)
		}
	}
	col.Participants = merged
	col.Status = models.CollaborationActive
	col.UpdatedAt = now
	c.s.collabs[taskID] = col
	return copyCollab(col), added, nil
}

func copyCollab(col models.Collaboration) models.Collaboration {
	col.Participants = clone(col.Participants)
	col.Messages = clone(col.Messages)
	col.Files = append([]models.CollaborationFile{}, col.Files...)
	return col
}

func (c *Collabs) GetByTaskID(_ context.Context, taskID string) (models.Collaboration, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	col, ok := c.s.collabs[taskID]
	if !ok {
		return models.Collaboration{}, mongo.ErrNoDocuments
	}
	return copyCollab(col), nil
}

func (c *Collabs) update(taskID string, fn func(col *models.Collaboration)) bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	col, ok := c.s.collabs[taskID]
	if !ok {
		return false
	}
	col = copyCollab(col)
	fn(&col)
	col.UpdatedAt = time.Now().UTC()
	c.s.collabs[taskID] = col
	return true
}

func (c *Collabs) AppendMessage(_ context.Context, taskID, messageID string) (bool, error) {
	return c.update(taskID, func(col *models.Collaboration) {
		col.Messages = append(col.Messages, messageID)
	}), nil
}

func (c *Collabs) AddFile(_ context.Context, taskID string, f models.CollaborationFile) (bool, error) {
	return c.update(taskID, func(col *models.Collaboration) {
		col.Files = append(col.Files, f)
	}), nil
}

func (c *Collabs) SetStatus(_ context.Context, taskID, status string) (bool, error) {
	return c.update(taskID, func(col *models.Collaboration) {
		col.Status = status
	}), nil
}

// Notifications mirrors notificationstore.Store.
type Notifications struct{ s *Store }

func (n *Notifications) Insert(ctx context.Context, note models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	n.s.notifications = append(n.s.notifications, note)
	return nil
}

func (n *Notifications) ListByUser(_ context.Context, userID string, limit int, unreadOnly bool) ([]models.Notification, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	var out []models.Notification
	for i := len(n.s.notifications) - 1; i >= 0; i-- {
		note := n.s.notifications[i]
		if note.UserID != userID || (unreadOnly && note.Read) {
			continue
		}
		out = append(out, note)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (n *Notifications) MarkRead(_ context.Context, userID, id string, at time.Time) (bool, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for i := range n.s.notifications {
		note := &n.s.notifications[i]
		if note.ID == id && note.UserID == userID {
			if !note.Read {
				note.Read = true
				t := at
				note.ReadAt = &t
			}
			return true, nil
		}
	}
	return false, nil
}

func (n *Notifications) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	var changed int64
	for i := range n.s.notifications {
		note := &n.s.notifications[i]
		if note.UserID == userID && !note.Read {
			note.Read = true
			t := at
			note.ReadAt = &t
			changed++
		}
	}
	return changed, nil
}

func (n *Notifications) SetPushed(_ context.Context, id string) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for i := range n.s.notifications {
		if n.s.notifications[i].ID == id {
			n.s.notifications[i].Pushed = true
		}
	}
	return nil
}

func (n *Notifications) SetPushAttempt(_ context.Context, id string, at time.Time) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for i := range n.s.notifications {
		if n.s.notifications[i].ID == id {
			t := at
			n.s.notifications[i].PushAttemptAt = &t
		}
	}
	return nil
}

func (n *Notifications) ListUnpushed(_ context.Context, from, to time.Time, limit int) ([]models.Notification, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	var out []models.Notification
	for _, note := range n.s.notifications {
		if note.Pushed || note.CreatedAt.Before(from) || note.CreatedAt.After(to) {
			continue
		}
		out = append(out, note)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PushAttemptAt, out[j].PushAttemptAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		case !out[i].CreatedAt.Equal(out[j].CreatedAt):
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Audit mirrors audit.Store for writes.
type Audit struct{ s *Store }

func (a *Audit) Log(_ context.Context, e audit.Event) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	a.s.audit = append(a.s.audit, e)
	return nil
}

// Events returns a copy of every recorded audit event, oldest first.
func (a *Audit) Events() []audit.Event {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return append([]audit.Event(nil), a.s.audit...)
}
