// internal/domain/hierarchy/memory.go
package hierarchy

import (
	"context"
	"sync"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

// Memory is a Directory backed by an insertion-ordered slice. It backs
// tests and the demo fixtures; production traffic goes through the
// Mongo-backed store.
type Memory struct {
	mu    sync.RWMutex
	users []models.HierarchyUser
}

func NewMemory(users ...models.HierarchyUser) *Memory {
	m := &Memory{}
	m.Add(users...)
	return m
}

// Add appends users in the order given.
func (m *Memory) Add(users ...models.HierarchyUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, users...)
}

// All returns a copy of every user in insertion order.
func (m *Memory) All() []models.HierarchyUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.HierarchyUser, len(m.users))
	copy(out, m.users)
	return out
}

func (m *Memory) ByID(_ context.Context, id string) (*models.HierarchyUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ByEmail(_ context.Context, email string) (*models.HierarchyUser, error) {
	key := text.Fold(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.users {
		if text.Fold(m.users[i].Email) == key {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ChildrenOf(_ context.Context, parentID string) ([]models.HierarchyUser, error) {
	if parentID == "" {
		// Roots have no parent link; they are not children of "".
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var kids []models.HierarchyUser
	for i := range m.users {
		if m.users[i].ParentID == parentID {
			kids = append(kids, m.users[i])
		}
	}
	return kids, nil
}

func (m *Memory) Roots(_ context.Context) ([]models.HierarchyUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var roots []models.HierarchyUser
	for i := range m.users {
		if !m.users[i].HasParent() {
			roots = append(roots, m.users[i])
		}
	}
	return roots, nil
}
