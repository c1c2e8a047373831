package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fisio-telemetry/internal/models"
)

// MemoryPrimary 内存主库：DB 未就绪时的联调回退，也用于测试
type MemoryPrimary struct {
	mu       sync.Mutex
	records  map[string][]models.PersistedRecord // key: patientID + "/" + sessionID
	comments map[string][]models.Comment
	sessions map[string]map[string]struct{} // patientID -> session ids
}

// NewMemoryPrimary 创建内存主库
func NewMemoryPrimary() *MemoryPrimary {
	return &MemoryPrimary{
		records:  make(map[string][]models.PersistedRecord),
		comments: make(map[string][]models.Comment),
		sessions: make(map[string]map[string]struct{}),
	}
}

func key(patientID, sessionID string) string {
	return patientID + "/" + sessionID
}

func (s *MemoryPrimary) SaveRecord(ctx context.Context, patientID string, rec *models.PersistedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(patientID, rec.SessionID)
	s.records[k] = append(s.records[k], *rec)
	if s.sessions[patientID] == nil {
		s.sessions[patientID] = make(map[string]struct{})
	}
	s.sessions[patientID][rec.SessionID] = struct{}{}
	return nil
}

func (s *MemoryPrimary) ListRecords(ctx context.Context, patientID, sessionID string) ([]models.PersistedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[key(patientID, sessionID)]
	out := make([]models.PersistedRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (s *MemoryPrimary) ListSessionIDs(ctx context.Context, patientID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.sessions[patientID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryPrimary) AppendComment(ctx context.Context, patientID, sessionID string, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(patientID, sessionID)
	s.comments[k] = append(s.comments[k], *c)
	return nil
}

func (s *MemoryPrimary) ListComments(ctx context.Context, patientID, sessionID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.comments[key(patientID, sessionID)]
	out := make([]models.Comment, len(cs))
	copy(out, cs)
	return out, nil
}

func (s *MemoryPrimary) DeleteComment(ctx context.Context, patientID, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(patientID, sessionID)
	kept := s.comments[k][:0]
	deleted := false
	for _, c := range s.comments[k] {
		if c.Timestamp.Equal(at) {
			deleted = true
			continue
		}
		kept = append(kept, c)
	}
	s.comments[k] = kept
	if !deleted {
		return ErrNotFound
	}
	return nil
}
