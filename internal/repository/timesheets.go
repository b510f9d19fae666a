package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

const timesheetColumns = `id, employee, school, year, month, rows, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimesheet(s rowScanner) (*domain.Timesheet, error) {
	ts := &domain.Timesheet{}
	var month int
	var rows []byte

	dst := []any{&ts.ID, &ts.Grid.Employee, &ts.Grid.School, &ts.Grid.Year, &month, &rows, &ts.CreatedAt, &ts.UpdatedAt, &ts.Version}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}

	ts.Grid.Month = time.Month(month)
	if err := json.Unmarshal(rows, &ts.Grid.Rows); err != nil {
		return nil, err
	}

	return ts, nil
}

// UpsertTimesheet 按 (employee, school, year, month) 保存月表。
// ts.ID 为 0 时新建；否则要求版本号一致，不一致时返回 sql.ErrNoRows。
func (r *Repository) UpsertTimesheet(ts *domain.Timesheet) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := json.Marshal(ts.Grid.Rows)
	if err != nil {
		return err
	}

	if ts.ID == 0 {
		query := `
			INSERT INTO timesheets (employee, school, year, month, rows)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at, version
		`
		args := []any{ts.Grid.Employee, ts.Grid.School, ts.Grid.Year, int(ts.Grid.Month), rows}
		return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&ts.ID, &ts.CreatedAt, &ts.UpdatedAt, &ts.Version)
	}

	query := `
		UPDATE timesheets
		SET
			rows = $1,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING created_at, updated_at, version
	`
	return r.dbpool.QueryRowContext(ctx, query, rows, ts.ID, ts.Version).Scan(&ts.CreatedAt, &ts.UpdatedAt, &ts.Version)
}

func (r *Repository) GetTimesheet(id int64) (*domain.Timesheet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE id = $1`

	return scanTimesheet(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetTimesheetByKey(employee, school string, year int, month time.Month) (*domain.Timesheet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT ` + timesheetColumns + ` FROM timesheets
		WHERE employee = $1 AND school = $2 AND year = $3 AND month = $4
	`

	return scanTimesheet(r.dbpool.QueryRowContext(ctx, query, employee, school, year, int(month)))
}

func (r *Repository) GetTimesheetsByMonth(year int, month time.Month) ([]*domain.Timesheet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT ` + timesheetColumns + ` FROM timesheets
		WHERE year = $1 AND month = $2
		ORDER BY employee, school
	`

	rows, err := r.dbpool.QueryContext(ctx, query, year, int(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	timesheets := make([]*domain.Timesheet, 0)
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		timesheets = append(timesheets, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return timesheets, nil
}

func (r *Repository) DeleteTimesheet(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		DELETE FROM timesheets WHERE id = $1
	`

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return err
	}

	return nil
}
