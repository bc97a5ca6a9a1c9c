package auth

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// TokenStore persists OAuth token records as JSON, mode 0600, atomic writes,
// mutex-guarded memoization — the token-bearing sibling of CredentialStore.
// Refresh is an external responsibility; this store only reads, writes, and
// exposes the expiry checks on agentcore.OAuthTokenRecord.
type TokenStore struct {
	path string

	mu     sync.Mutex
	cache  map[agentcore.ProviderID]agentcore.OAuthTokenRecord
	loaded bool
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

type tokenRecordJSON struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	IDToken      string     `json:"id_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastRefresh  time.Time  `json:"last_refresh"`
	AccountID    string     `json:"account_id,omitempty"`
}

func (s *TokenStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.cache = map[agentcore.ProviderID]agentcore.OAuthTokenRecord{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	raw := map[string]tokenRecordJSON{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	m := make(map[agentcore.ProviderID]agentcore.OAuthTokenRecord, len(raw))
	for k, v := range raw {
		m[agentcore.ProviderID(k)] = agentcore.OAuthTokenRecord{
			AccessToken:  v.AccessToken,
			RefreshToken: v.RefreshToken,
			IDToken:      v.IDToken,
			ExpiresAt:    v.ExpiresAt,
			LastRefresh:  v.LastRefresh,
			AccountID:    v.AccountID,
		}
	}
	s.cache = m
	s.loaded = true
	return nil
}

// Get returns the stored token record for provider, if any.
func (s *TokenStore) Get(provider agentcore.ProviderID) (agentcore.OAuthTokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return agentcore.OAuthTokenRecord{}, false, err
	}
	rec, ok := s.cache[provider]
	return rec, ok, nil
}

// Set stores (overwriting) the token record for provider.
func (s *TokenStore) Set(provider agentcore.ProviderID, rec agentcore.OAuthTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	next := make(map[agentcore.ProviderID]agentcore.OAuthTokenRecord, len(s.cache)+1)
	for k, v := range s.cache {
		next[k] = v
	}
	next[provider] = rec
	if err := s.persist(next); err != nil {
		return err
	}
	s.cache = next
	return nil
}

// Remove deletes the stored token record for provider, if present.
func (s *TokenStore) Remove(provider agentcore.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := s.cache[provider]; !ok {
		return nil
	}
	next := make(map[agentcore.ProviderID]agentcore.OAuthTokenRecord, len(s.cache))
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

func (s *TokenStore) persist(m map[agentcore.ProviderID]agentcore.OAuthTokenRecord) error {
	raw := make(map[string]tokenRecordJSON, len(m))
	for k, v := range m {
		raw[string(k)] = tokenRecordJSON{
			AccessToken:  v.AccessToken,
			RefreshToken: v.RefreshToken,
			IDToken:      v.IDToken,
			ExpiresAt:    v.ExpiresAt,
			LastRefresh:  v.LastRefresh,
			AccountID:    v.AccountID,
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o600)
}
