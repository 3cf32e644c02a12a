package prefs

import "sync"

// MemoryStore is a map-backed Store. FailWrites makes PutString fail, which
// lets callers exercise their persistence-failure paths.
type MemoryStore struct {
	mu         sync.Mutex
	values     map[string]string
	failWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (s *MemoryStore) GetString(key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *MemoryStore) PutString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.values[key] = value
	return nil
}

// FailWrites sets the error every later PutString returns. nil restores writes.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}
