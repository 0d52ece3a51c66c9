package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ffa-tycoon/ffa-tycoon/internal/database"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
)

type ParkRepository interface {
	Add(ctx context.Context, params model.CreateParkParams) (*model.Park, error)
	FindByID(ctx context.Context, id int64) (*model.Park, error)
	ChangeFileName(ctx context.Context, id int64, filename string) error
	UpdateDate(ctx context.Context, id int64, date time.Time) error
	RemoveImages(ctx context.Context, id int64) error
	FindMissingImage(ctx context.Context, kind model.ImageKind) (*model.Park, error)
	ReplaceImage(ctx context.Context, id int64, kind model.ImageKind, filename string) error
	Delete(ctx context.Context, id int64) error
	ListByMonth(ctx context.Context, page int, now time.Time) ([]model.Park, error)
	Count(ctx context.Context) (int, error)
	MonthsSinceOldest(ctx context.Context, now time.Time) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ParkRepository
}

type parkRepo struct {
	db database.DBTX
}

func NewParkRepository(db *sqlx.DB) ParkRepository {
	return &parkRepo{db: db}
}

func (r *parkRepo) WithTx(tx *sqlx.Tx) ParkRepository {
	return &parkRepo{db: tx}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *parkRepo) Add(ctx context.Context, params model.CreateParkParams) (*model.Park, error) {
	date := params.Date
	if date.IsZero() {
		date = time.Now()
	}
	var park model.Park
	err := r.db.GetContext(ctx, &park, r.db.Rebind(`
		INSERT INTO parks (name, groupname, gamemode, date, scenario, dir, filename)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`), params.Name, params.GroupName, params.GameMode, date.UTC(),
		nullable(params.Scenario), nullable(params.Dir), nullable(params.FileName))
	if err != nil {
		return nil, err
	}
	return &park, nil
}

func (r *parkRepo) FindByID(ctx context.Context, id int64) (*model.Park, error) {
	var park model.Park
	err := r.db.GetContext(ctx, &park, r.db.Rebind(`SELECT * FROM parks WHERE id = ?`), id)
	return HandleNotFound(&park, err)
}

func (r *parkRepo) ChangeFileName(ctx context.Context, id int64, filename string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE parks SET filename = ? WHERE id = ?`), filename, id)
	return err
}

// UpdateDate stamps the park with date, or the current time when date is zero.
func (r *parkRepo) UpdateDate(ctx context.Context, id int64, date time.Time) error {
	if date.IsZero() {
		date = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE parks SET date = ? WHERE id = ?`), date.UTC(), id)
	return err
}

func (r *parkRepo) RemoveImages(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE parks SET largeimg = NULL, thumbnail = NULL WHERE id = ?
	`), id)
	return err
}

// FindMissingImage returns one park without an image of the given kind.
// Parks without a save file cannot be rendered and are skipped.
func (r *parkRepo) FindMissingImage(ctx context.Context, kind model.ImageKind) (*model.Park, error) {
	var park model.Park
	err := r.db.GetContext(ctx, &park, `
		SELECT * FROM parks
		WHERE `+kind.Column()+` IS NULL AND filename IS NOT NULL AND dir IS NOT NULL
		ORDER BY id
		LIMIT 1
	`)
	return HandleNotFound(&park, err)
}

func (r *parkRepo) ReplaceImage(ctx context.Context, id int64, kind model.ImageKind, filename string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE parks SET `+kind.Column()+` = ? WHERE id = ?
	`), filename, id)
	return err
}

func (r *parkRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM parks WHERE id = ?`), id)
	return err
}

// monthStart returns the first instant of the month page months before
// now's month; page 1 is the current month.
func monthStart(now time.Time, page int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()-time.Month(page-1), 1, 0, 0, 0, 0, time.UTC)
}

// ListByMonth returns the parks archived in one calendar month (UTC).
func (r *parkRepo) ListByMonth(ctx context.Context, page int, now time.Time) ([]model.Park, error) {
	if page < 1 {
		page = 1
	}
	start := monthStart(now, page)
	end := start.AddDate(0, 1, 0)

	parks := []model.Park{}
	err := r.db.SelectContext(ctx, &parks, r.db.Rebind(`
		SELECT * FROM parks
		WHERE date >= ? AND date < ?
		ORDER BY date DESC, id DESC
	`), start, end)
	if err != nil {
		return nil, err
	}
	return parks, nil
}

func (r *parkRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM parks`)
	return count, err
}

// MonthsSinceOldest returns how many monthly pages the archive spans,
// counting the current month. An empty archive spans none.
func (r *parkRepo) MonthsSinceOldest(ctx context.Context, now time.Time) (int, error) {
	var oldest model.Park
	err := r.db.GetContext(ctx, &oldest, `SELECT * FROM parks ORDER BY date ASC LIMIT 1`)
	found, err := HandleNotFound(&oldest, err)
	if err != nil || found == nil {
		return 0, err
	}

	now = now.UTC()
	first := found.Date.UTC()
	months := (now.Year()-first.Year())*12 + int(now.Month()) - int(first.Month())
	if months < 0 {
		months = 0
	}
	return months + 1, nil
}
