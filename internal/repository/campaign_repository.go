package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
)

// CampaignFilter narrows List queries. Zero values mean "no filter".
type CampaignFilter struct {
	Statuses  []string
	CreatedBy string
	From      *time.Time
	To        *time.Time
	Search    string // case-insensitive substring over title and message
}

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	Update(c *model.Campaign) error
	UpdateStatus(id, status string) error
	UpdateDeliveryResult(id, status string, sentAt time.Time, delivered, failed int) error
	List(f CampaignFilter, offset, limit int) ([]*model.Campaign, int, error)
	CountByStatus(status string) (int, error)
	Delete(id string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, title, message, status, scheduled_at, sent_at,
    device_count, delivered_count, failed_count, segments, created_by, metadata,
    created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns
            (id, title, message, status, scheduled_at, device_count, segments, created_by, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = r.DB.Exec(query, c.ID, c.Title, c.Message, c.Status, c.ScheduledAt,
		c.DeviceCount, pq.Array(c.Segments), c.CreatedBy, meta, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET title=$1, message=$2, status=$3, scheduled_at=$4, segments=$5, metadata=$6, updated_at=NOW()
        WHERE id=$7
    `
	_, err = r.DB.Exec(query, c.Title, c.Message, c.Status, c.ScheduledAt,
		pq.Array(c.Segments), meta, c.ID)
	return err
}

func (r *CampaignRepository) UpdateStatus(id, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// UpdateDeliveryResult records the outcome of one completed delivery attempt.
func (r *CampaignRepository) UpdateDeliveryResult(id, status string, sentAt time.Time, delivered, failed int) error {
	query := `
        UPDATE campaigns
        SET status=$1, sent_at=$2, delivered_count=$3, failed_count=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, status, sentAt, delivered, failed, id)
	return err
}

func (r *CampaignRepository) List(f CampaignFilter, offset, limit int) ([]*model.Campaign, int, error) {
	where, args := buildCampaignWhere(f)

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM campaigns` + where
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns WHERE status=$1`, status).Scan(&count)
	return count, err
}

func (r *CampaignRepository) Delete(id string) error {
	res, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func buildCampaignWhere(f CampaignFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if len(f.Statuses) > 0 {
		where += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, pq.Array(f.Statuses))
		argPos++
	}
	if f.CreatedBy != "" {
		where += fmt.Sprintf(" AND created_by=$%d", argPos)
		args = append(args, f.CreatedBy)
		argPos++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *f.To)
		argPos++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR message ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+f.Search+"%")
		argPos++
	}

	return where, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var segments []string
	var meta []byte
	err := row.Scan(&c.ID, &c.Title, &c.Message, &c.Status, &c.ScheduledAt, &c.SentAt,
		&c.DeviceCount, &c.DeliveredCount, &c.FailedCount, pq.Array(&segments),
		&c.CreatedBy, &meta, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Segments = segments
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
