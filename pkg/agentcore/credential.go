package agentcore

import "time"

// OAuthTokenRecord is one provider's OAuth token bundle, keyed externally by
// provider storage key. Field names mirror golang.org/x/oauth2.Token's
// shape (AccessToken/RefreshToken/Expiry) since that's the vocabulary the
// rest of the ecosystem expects, even though this type is not an
// oauth2.Token itself — the core never performs the OAuth dance, it only
// stores and reads what an external flow produced.
type OAuthTokenRecord struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    *time.Time
	LastRefresh  time.Time
	AccountID    string
}

// IsExpired reports whether the access token has already expired as of now.
func (t OAuthTokenRecord) IsExpired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Before(*t.ExpiresAt)
}

// NeedsRefresh reports whether the token should be refreshed: either already
// expired, or within threshold of expiring. Refreshing itself is an external
// responsibility; this is a read-only check.
func (t OAuthTokenRecord) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !t.ExpiresAt.After(now.Add(threshold))
}
