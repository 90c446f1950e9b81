package tagindex

import "sync"

// Memory is an in-process tag index. A single mutex guards both directions
// of the mapping so an AddTags/RemoveKey pair can never interleave into a
// half-registered key.
type Memory struct {
	mu        sync.Mutex
	keysByTag map[string]map[string]struct{}
	tagsByKey map[string][]string
}

// NewMemory creates an empty in-process tag index.
func NewMemory() *Memory {
	return &Memory{
		keysByTag: make(map[string]map[string]struct{}),
		tagsByKey: make(map[string][]string),
	}
}

// AddTags registers key under each tag, replacing any previous registration.
func (m *Memory) AddTags(key string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(key)

	if len(tags) == 0 {
		return nil
	}

	stored := make([]string, 0, len(tags))
	for _, tag := range tags {
		bucket, ok := m.keysByTag[tag]
		if !ok {
			bucket = make(map[string]struct{})
			m.keysByTag[tag] = bucket
		}
		if _, dup := bucket[key]; dup {
			continue
		}
		bucket[key] = struct{}{}
		stored = append(stored, tag)
	}
	m.tagsByKey[key] = stored

	return nil
}

// RemoveKey unregisters key from every tag it appears under.
func (m *Memory) RemoveKey(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(key)
	return nil
}

// KeysForTags returns the union of keys registered under the given tags.
func (m *Memory) KeysForTags(tags []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var keys []string
	for _, tag := range tags {
		for key := range m.keysByTag[tag] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Clear drops the bucket for tag and returns the keys it contained.
func (m *Memory) Clear(tag string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.keysByTag[tag]
	if !ok {
		return nil, nil
	}

	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
		m.tagsByKey[key] = without(m.tagsByKey[key], tag)
		if len(m.tagsByKey[key]) == 0 {
			delete(m.tagsByKey, key)
		}
	}
	delete(m.keysByTag, tag)

	return keys, nil
}

// Close empties the index.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keysByTag = make(map[string]map[string]struct{})
	m.tagsByKey = make(map[string][]string)
	return nil
}

func (m *Memory) removeLocked(key string) {
	for _, tag := range m.tagsByKey[key] {
		bucket := m.keysByTag[tag]
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(m.keysByTag, tag)
		}
	}
	delete(m.tagsByKey, key)
}

func without(tags []string, tag string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

var _ Index = (*Memory)(nil)
