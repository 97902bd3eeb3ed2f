// internal/model/device_token.go
package model

import "time"

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// DeviceToken is one registered installation. The push credential itself is
// stored encrypted: TokenEnc holds nonce-prefixed ciphertext and TokenHash is
// the SHA-256 digest used for dedup lookups. Neither field is ever serialized
// to API responses.
type DeviceToken struct {
	ID           string     `db:"id" json:"id"`
	UserID       *string    `db:"user_id" json:"user_id,omitempty"`
	TokenHash    string     `db:"token_hash" json:"-"`
	TokenEnc     []byte     `db:"token_enc" json:"-"`
	Platform     string     `db:"platform" json:"platform"`
	AppVersion   *string    `db:"app_version" json:"app_version,omitempty"`
	IsTestDevice bool       `db:"is_test_device" json:"is_test_device"`
	LastActive   time.Time  `db:"last_active" json:"last_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ValidPlatform reports whether p is one of the supported platforms.
func ValidPlatform(p string) bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformWeb
}
