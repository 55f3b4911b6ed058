package session

import (
	"encoding/json"
	"os"
	"sync"
)

// Storage keys for the two credentials.  Fixed so every client of the SDK
// reads and writes the same slots.
const (
	KeyAccessToken  = "evcore_token"
	KeyRefreshToken = "evcore_refresh_token"
)

// KV is one synchronous string store.  Two of them make up Storage,
// mirroring the persistent and session-scoped browser storages the platform
// clients use.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Storage is the shared mutable credential slot.  Tokens are written to both
// scopes and cleared from both; reads prefer the persistent scope.  Any code
// path that decides a token is invalid must call ClearTokens before yielding,
// so no concurrent reader can observe the stale value.
type Storage struct {
	Local   KV // persistent scope
	Session KV // session scope
}

// NewMemoryStorage returns a Storage backed by two in-memory maps.
func NewMemoryStorage() *Storage {
	return &Storage{Local: NewMemoryKV(), Session: NewMemoryKV()}
}

// AccessToken returns the stored access token, empty when absent.
func (s *Storage) AccessToken() string { return s.get(KeyAccessToken) }

// RefreshToken returns the stored refresh token, empty when absent.
func (s *Storage) RefreshToken() string { return s.get(KeyRefreshToken) }

// SetTokens writes the pair to both scopes.  An empty refresh token (the
// fallback path has none) removes the refresh slots instead.
func (s *Storage) SetTokens(access, refresh string) {
	s.Local.Set(KeyAccessToken, access)
	s.Session.Set(KeyAccessToken, access)
	if refresh == "" {
		s.Local.Delete(KeyRefreshToken)
		s.Session.Delete(KeyRefreshToken)
		return
	}
	s.Local.Set(KeyRefreshToken, refresh)
	s.Session.Set(KeyRefreshToken, refresh)
}

// ClearTokens removes both credentials from both scopes.
func (s *Storage) ClearTokens() {
	for _, kv := range []KV{s.Local, s.Session} {
		kv.Delete(KeyAccessToken)
		kv.Delete(KeyRefreshToken)
	}
}

func (s *Storage) get(key string) string {
	if v, ok := s.Local.Get(key); ok && v != "" {
		return v
	}
	if v, ok := s.Session.Get(key); ok && v != "" {
		return v
	}
	return ""
}

// MemoryKV is a mutex-guarded map.  Used for the session scope and in tests.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: make(map[string]string)} }

func (k *MemoryKV) Get(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok
}

func (k *MemoryKV) Set(key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
}

func (k *MemoryKV) Delete(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
}

// FileKV persists its map as a JSON file, giving CLI and kiosk clients a
// durable scope that survives restarts.  Every write rewrites the file; the
// volumes here are two keys, not a database.
type FileKV struct {
	mu   sync.Mutex
	path string
	m    map[string]string
}

// NewFileKV loads (or starts) the store at path.  A missing or unreadable
// file is treated as empty rather than an error: worst case the user logs in
// again.
func NewFileKV(path string) *FileKV {
	kv := &FileKV{path: path, m: make(map[string]string)}
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &kv.m)
	}
	return kv
}

func (k *FileKV) Get(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok
}

func (k *FileKV) Set(key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	k.flush()
}

func (k *FileKV) Delete(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	k.flush()
}

func (k *FileKV) flush() {
	raw, err := json.Marshal(k.m)
	if err != nil {
		return
	}
	_ = os.WriteFile(k.path, raw, 0o600)
}
