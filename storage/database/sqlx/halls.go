package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/studyhall"
)

type hallRow struct {
	ID            string         `db:"id"`
	MerchantID    string         `db:"merchant_id"`
	InchargeID    sql.NullString `db:"incharge_id"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	Address       string         `db:"address"`
	City          string         `db:"city"`
	Rows          int            `db:"rows"`
	SeatsPerRow   int            `db:"seats_per_row"`
	PricePerDay   int64          `db:"price_per_day"`
	PricePerMonth int64          `db:"price_per_month"`
	Amenities     pq.StringArray `db:"amenities"`
	ImageURLs     pq.StringArray `db:"image_urls"`
	IsActive      bool           `db:"is_active"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toHallRow(h studyhall.StudyHall) hallRow {
	amenities, images := h.Amenities, h.ImageURLs
	if amenities == nil {
		amenities = []string{}
	}
	if images == nil {
		images = []string{}
	}
	return hallRow{
		ID:            h.ID,
		MerchantID:    h.MerchantID,
		InchargeID:    nullString(h.InchargeID),
		Name:          h.Name,
		Description:   h.Description,
		Address:       h.Address,
		City:          h.City,
		Rows:          h.Rows,
		SeatsPerRow:   h.SeatsPerRow,
		PricePerDay:   h.PricePerDay,
		PricePerMonth: h.PricePerMonth,
		Amenities:     amenities,
		ImageURLs:     images,
		IsActive:      h.IsActive,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

func (r hallRow) toHall() studyhall.StudyHall {
	return studyhall.StudyHall{
		ID:            r.ID,
		MerchantID:    r.MerchantID,
		InchargeID:    r.InchargeID.String,
		Name:          r.Name,
		Description:   r.Description,
		Address:       r.Address,
		City:          r.City,
		Rows:          r.Rows,
		SeatsPerRow:   r.SeatsPerRow,
		PricePerDay:   r.PricePerDay,
		PricePerMonth: r.PricePerMonth,
		Amenities:     append([]string{}, r.Amenities...),
		ImageURLs:     append([]string{}, r.ImageURLs...),
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

const hallColumns = `id, merchant_id, incharge_id, name, description, address, city, rows, seats_per_row,
	price_per_day, price_per_month, amenities, image_urls, is_active, created_at, updated_at`

type hallRepository struct {
	db *sqlx.DB
}

func NewHallRepository(db *sqlx.DB) studyhall.Repository {
	return &hallRepository{db: db}
}

func (repo *hallRepository) CreateHall(ctx context.Context, hall studyhall.StudyHall) (studyhall.StudyHall, error) {
	hall.ID = uuid.New().String()
	q := `INSERT INTO study_halls (` + hallColumns + `) VALUES (:id, :merchant_id, :incharge_id, :name, :description,
		:address, :city, :rows, :seats_per_row, :price_per_day, :price_per_month, :amenities, :image_urls, :is_active,
		:created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toHallRow(hall)); err != nil {
		return studyhall.StudyHall{}, errors.Wrap(err, "inserting study hall")
	}
	return hall, nil
}

func (repo *hallRepository) QueryHalls(ctx context.Context, filter studyhall.QueryFilter) ([]studyhall.StudyHall, error) {
	var w where
	if filter.MerchantID != "" {
		if !isUUID(filter.MerchantID) {
			return []studyhall.StudyHall{}, nil
		}
		w.add("merchant_id = ?", filter.MerchantID)
	}
	if filter.InchargeID != "" {
		if !isUUID(filter.InchargeID) {
			return []studyhall.StudyHall{}, nil
		}
		w.add("incharge_id = ?", filter.InchargeID)
	}
	if filter.City != "" {
		w.add("city ILIKE ?", "%"+escapeLike(filter.City)+"%")
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		w.add("(name ILIKE ? OR address ILIKE ?)", pattern, pattern)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	var rows []hallRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+hallColumns+` FROM study_halls`+w.String()+` ORDER BY name`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying study halls")
	}
	halls := make([]studyhall.StudyHall, 0, len(rows))
	for _, r := range rows {
		halls = append(halls, r.toHall())
	}
	return halls, nil
}

func (repo *hallRepository) GetHall(ctx context.Context, id string) (studyhall.StudyHall, error) {
	if !isUUID(id) {
		return studyhall.StudyHall{}, studyhall.ErrNotFound
	}
	var row hallRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+hallColumns+` FROM study_halls WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return studyhall.StudyHall{}, studyhall.ErrNotFound
		}
		return studyhall.StudyHall{}, errors.Wrap(err, "getting study hall")
	}
	return row.toHall(), nil
}

func (repo *hallRepository) UpdateHall(ctx context.Context, hall studyhall.StudyHall) (studyhall.StudyHall, error) {
	q := `UPDATE study_halls SET incharge_id = :incharge_id, name = :name, description = :description,
		address = :address, city = :city, rows = :rows, seats_per_row = :seats_per_row,
		price_per_day = :price_per_day, price_per_month = :price_per_month, amenities = :amenities,
		image_urls = :image_urls, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toHallRow(hall))
	if err != nil {
		return studyhall.StudyHall{}, errors.Wrap(err, "updating study hall")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return studyhall.StudyHall{}, studyhall.ErrNotFound
	}
	return hall, nil
}

func (repo *hallRepository) DeleteHall(ctx context.Context, id string) error {
	if !isUUID(id) {
		return studyhall.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM study_halls WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting study hall")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return studyhall.ErrNotFound
	}
	return nil
}

func (repo *hallRepository) CountHalls(ctx context.Context, merchantID string) (int, error) {
	var n int
	if !isUUID(merchantID) {
		return 0, nil
	}
	if err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM study_halls WHERE merchant_id = $1`, merchantID); err != nil {
		return 0, errors.Wrap(err, "counting study halls")
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
