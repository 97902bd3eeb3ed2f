// Package registry is the device-token registry: one record per installed
// app instance, deduplicated by token. Encryption happens here, at the
// persistence boundary, so callers above never handle ciphertext and only
// the send path ever sees a plaintext token.
package registry

import (
	"github.com/google/uuid"

	"github.com/eventdesk/eventdesk-backend/internal/crypto"
	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
	"github.com/eventdesk/eventdesk-backend/internal/repository"
)

type DeviceRegistry struct {
	Devices repository.DeviceTokenRepositoryInterface
	Cipher  *crypto.TokenCipher
}

func NewDeviceRegistry(devices repository.DeviceTokenRepositoryInterface, cipher *crypto.TokenCipher) *DeviceRegistry {
	return &DeviceRegistry{Devices: devices, Cipher: cipher}
}

type RegisterInput struct {
	Token        string
	Platform     string
	AppVersion   *string
	UserID       *string
	IsTestDevice bool
}

// Register upserts a device by token. A repeated registration with the same
// token refreshes the existing record (platform, app version, user, test
// flag, last_active) instead of creating a duplicate.
func (r *DeviceRegistry) Register(in RegisterInput) (*model.DeviceToken, error) {
	if in.Token == "" {
		return nil, appErrors.NewValidation("token", "must not be empty")
	}
	if !model.ValidPlatform(in.Platform) {
		return nil, appErrors.NewValidation("platform", "must be one of ios, android, web")
	}

	enc, err := r.Cipher.Encrypt(in.Token)
	if err != nil {
		return nil, err
	}

	d := &model.DeviceToken{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		TokenHash:    crypto.Hash(in.Token),
		TokenEnc:     enc,
		Platform:     in.Platform,
		AppVersion:   in.AppVersion,
		IsTestDevice: in.IsTestDevice,
	}
	if err := r.Devices.Upsert(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DeviceRegistry) FindByID(id string) (*model.DeviceToken, error) {
	return r.Devices.GetByID(id)
}

// ListActive returns registered devices; with excludeTest set, test devices
// are left out, which is the production fan-out population.
func (r *DeviceRegistry) ListActive(excludeTest bool) ([]*model.DeviceToken, error) {
	return r.Devices.List(excludeTest)
}

// ListTestDevices returns test devices, most recently active first.
func (r *DeviceRegistry) ListTestDevices() ([]*model.DeviceToken, error) {
	return r.Devices.ListTestDevices()
}

func (r *DeviceRegistry) Count(excludeTest bool) (int, error) {
	return r.Devices.Count(excludeTest)
}

// DecryptToken recovers the plaintext push credential. Only the gateway send
// path may call this; the plaintext must never be persisted or logged.
func (r *DeviceRegistry) DecryptToken(d *model.DeviceToken) (string, error) {
	return r.Cipher.Decrypt(d.TokenEnc)
}
