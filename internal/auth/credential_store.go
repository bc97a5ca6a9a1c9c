package auth

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// CredentialStore persists API keys as JSON under the config directory,
// mode 0600, with atomic writes and a mutex-guarded in-memory memoization
// invalidated on every mutation (spec §4.2).
//
// Grounded on internal/auth/profiles.go's ProfileStore (RWMutex over a
// provider-keyed map), simplified: this store holds one key per provider,
// not the teacher's rotation/cooldown/multi-profile bookkeeping, which
// spec.md does not ask for.
type CredentialStore struct {
	path string

	mu    sync.Mutex
	cache map[agentcore.ProviderID]string
	// loaded is true once cache reflects the file on disk (or an absent
	// file treated as empty); false forces a re-read on next access.
	loaded bool
}

// NewCredentialStore opens a store backed by path (typically
// "<config dir>/credentials.json"). The file is not read until first use.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

func (s *CredentialStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.cache = map[agentcore.ProviderID]string{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	raw := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	m := make(map[agentcore.ProviderID]string, len(raw))
	for k, v := range raw {
		m[agentcore.ProviderID(k)] = v
	}
	s.cache = m
	s.loaded = true
	return nil
}

// Get returns the stored API key for provider, if any.
func (s *CredentialStore) Get(provider agentcore.ProviderID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return "", false, err
	}
	key, ok := s.cache[provider]
	return key, ok, nil
}

// Set stores (overwriting) the API key for provider.
func (s *CredentialStore) Set(provider agentcore.ProviderID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	next := make(map[agentcore.ProviderID]string, len(s.cache)+1)
	for k, v := range s.cache {
		next[k] = v
	}
	next[provider] = key
	if err := s.persist(next); err != nil {
		return err
	}
	s.cache = next
	return nil
}

// Remove deletes the stored API key for provider, if present.
func (s *CredentialStore) Remove(provider agentcore.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := s.cache[provider]; !ok {
		return nil
	}
	next := make(map[agentcore.ProviderID]string, len(s.cache))
	for k, v := range s.cache {
		if k != provider {
			next[k] = v
		}
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.cache = next
	return nil
}

// ListConfigured returns the providers with a stored credential.
func (s *CredentialStore) ListConfigured() ([]agentcore.ProviderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]agentcore.ProviderID, 0, len(s.cache))
	for k := range s.cache {
		out = append(out, k)
	}
	return out, nil
}

func (s *CredentialStore) persist(m map[agentcore.ProviderID]string) error {
	raw := make(map[string]string, len(m))
	for k, v := range m {
		raw[string(k)] = v
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o600)
}
