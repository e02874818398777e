package model

import "time"

// CachedToken mirrors the identity provider's token response and is what the
// token cache persists between runs. Issuance time is not stored in the
// record; the cache file's modification time stands in for it.
type CachedToken struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

// RefreshTTL is how long the refresh token stays usable, measured from the
// moment the pair was issued.
func (t CachedToken) RefreshTTL() time.Duration {
	return time.Duration(t.RefreshTokenExpiresIn) * time.Second
}
