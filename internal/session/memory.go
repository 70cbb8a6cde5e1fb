package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memorySession struct {
	namespace string
	createdAt time.Time
	files     map[string]File
	tickets   map[string]Artifact
}

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

func (m *MemoryStore) EnsureNamespace(ctx context.Context, sid, candidate string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sid]; ok {
		return s.namespace, nil
	}
	m.sessions[sid] = &memorySession{
		namespace: candidate,
		createdAt: now,
		files:     make(map[string]File),
		tickets:   make(map[string]Artifact),
	}
	return candidate, nil
}

func (m *MemoryStore) Namespace(ctx context.Context, sid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return "", ErrNotFound
	}
	return s.namespace, nil
}

func (m *MemoryStore) PutFile(ctx context.Context, sid string, f File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return ErrNotFound
	}
	s.files[f.ID] = f
	return nil
}

func (m *MemoryStore) GetFile(ctx context.Context, sid, id string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return File{}, ErrNotFound
	}
	f, ok := s.files[id]
	if !ok {
		return File{}, ErrNotFound
	}
	return f, nil
}

func (m *MemoryStore) ListFiles(ctx context.Context, sid string) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return nil, nil
	}
	files := make([]File, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
	return files, nil
}

func (m *MemoryStore) TakeFile(ctx context.Context, sid, id string) (File, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return File{}, false, nil
	}
	f, ok := s.files[id]
	if ok {
		delete(s.files, id)
	}
	return f, ok, nil
}

func (m *MemoryStore) PutTicket(ctx context.Context, sid string, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return ErrNotFound
	}
	s.tickets[a.DownloadID] = a
	return nil
}

func (m *MemoryStore) GetTicket(ctx context.Context, sid, id string) (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	a, ok := s.tickets[id]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) DeleteTicket(ctx context.Context, sid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sid]; ok {
		delete(s.tickets, id)
	}
	return nil
}

func (m *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (PruneStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats PruneStats
	for sid, s := range m.sessions {
		for id, f := range s.files {
			if f.UploadedAt.Before(cutoff) {
				delete(s.files, id)
				stats.Files++
			}
		}
		for id, a := range s.tickets {
			if a.CreatedAt.Before(cutoff) {
				delete(s.tickets, id)
				stats.Tickets++
			}
		}
		if len(s.files) == 0 && len(s.tickets) == 0 && s.createdAt.Before(cutoff) {
			delete(m.sessions, sid)
			stats.Sessions++
		}
	}
	return stats, nil
}
