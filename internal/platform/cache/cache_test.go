package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memCache is a map-backed Cache used to exercise the JSON helpers.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestNoopAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newMemCache()

	type entry struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}

	if err := SetJSON(ctx, c, "directory:specialties", []entry{{Name: "Cardiology", Code: "320"}}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got []entry
	if err := GetJSON(ctx, c, "directory:specialties", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Cardiology" {
		t.Errorf("unexpected value %+v", got)
	}

	if err := GetJSON(ctx, c, "absent", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss for absent key, got %v", err)
	}
}
