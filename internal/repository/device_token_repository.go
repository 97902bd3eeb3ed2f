package repository

import (
	"database/sql"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
)

type DeviceTokenRepositoryInterface interface {
	// Upsert inserts the device or, when a record with the same token hash
	// exists, refreshes it in place. The stored id and created_at win over
	// the ones passed in.
	Upsert(d *model.DeviceToken) error
	GetByID(id string) (*model.DeviceToken, error)
	List(excludeTest bool) ([]*model.DeviceToken, error)
	ListTestDevices() ([]*model.DeviceToken, error)
	Count(excludeTest bool) (int, error)
}

type DeviceTokenRepository struct {
	DB *sql.DB
}

const deviceColumns = `id, user_id, token_hash, token_enc, platform, app_version,
    is_test_device, last_active, created_at`

func (r *DeviceTokenRepository) Upsert(d *model.DeviceToken) error {
	query := `
        INSERT INTO device_tokens
            (id, user_id, token_hash, token_enc, platform, app_version, is_test_device, last_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        ON CONFLICT (token_hash) DO UPDATE
        SET user_id=EXCLUDED.user_id,
            token_enc=EXCLUDED.token_enc,
            platform=EXCLUDED.platform,
            app_version=EXCLUDED.app_version,
            is_test_device=EXCLUDED.is_test_device,
            last_active=NOW()
        RETURNING id, last_active, created_at
    `
	return r.DB.QueryRow(query, d.ID, d.UserID, d.TokenHash, d.TokenEnc,
		d.Platform, d.AppVersion, d.IsTestDevice).
		Scan(&d.ID, &d.LastActive, &d.CreatedAt)
}

func (r *DeviceTokenRepository) GetByID(id string) (*model.DeviceToken, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_tokens WHERE id=$1`
	d, err := scanDevice(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewDeviceNotFound(id)
		}
		return nil, err
	}
	return d, nil
}

func (r *DeviceTokenRepository) List(excludeTest bool) ([]*model.DeviceToken, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_tokens`
	if excludeTest {
		query += ` WHERE is_test_device = FALSE`
	}
	return r.queryDevices(query)
}

func (r *DeviceTokenRepository) ListTestDevices() ([]*model.DeviceToken, error) {
	query := `SELECT ` + deviceColumns + `
        FROM device_tokens
        WHERE is_test_device = TRUE
        ORDER BY last_active DESC`
	return r.queryDevices(query)
}

func (r *DeviceTokenRepository) Count(excludeTest bool) (int, error) {
	query := `SELECT COUNT(*) FROM device_tokens`
	if excludeTest {
		query += ` WHERE is_test_device = FALSE`
	}
	var count int
	err := r.DB.QueryRow(query).Scan(&count)
	return count, err
}

func (r *DeviceTokenRepository) queryDevices(query string, args ...interface{}) ([]*model.DeviceToken, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []*model.DeviceToken{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func scanDevice(row rowScanner) (*model.DeviceToken, error) {
	var d model.DeviceToken
	err := row.Scan(&d.ID, &d.UserID, &d.TokenHash, &d.TokenEnc, &d.Platform,
		&d.AppVersion, &d.IsTestDevice, &d.LastActive, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ DeviceTokenRepositoryInterface = (*DeviceTokenRepository)(nil)
