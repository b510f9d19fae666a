package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

// uniqueShiftEntries 同一批中 (员工, 日期, 校区) 重复时只保留第一条，与生成月表时的取舍一致
func uniqueShiftEntries(entries []domain.ShiftEntry) []domain.ShiftEntry {
	type key struct {
		employee string
		date     domain.Date
		school   string
	}

	seen := make(map[key]bool, len(entries))
	unique := make([]domain.ShiftEntry, 0, len(entries))
	for _, entry := range entries {
		k := key{employee: entry.Employee, date: entry.Date, school: entry.School}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, entry)
	}
	return unique
}

// InsertShiftEntries 保存解析出的班次，同一员工同一天同一校区的旧记录会被覆盖。
// 同一批中重复的记录以第一条为准。
func (r *Repository) InsertShiftEntries(entries []domain.ShiftEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO shift_entries (employee, work_date, day_label, school, shift)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee, work_date, school)
		DO UPDATE SET day_label = EXCLUDED.day_label, shift = EXCLUDED.shift
	`

	for _, entry := range uniqueShiftEntries(entries) {
		args := []any{entry.Employee, entry.Date.Time(), entry.Day, entry.School, entry.Shift}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// GetShiftEntries 返回某个月的班次，employee 为空时返回所有员工
func (r *Repository) GetShiftEntries(employee string, year int, month time.Month) ([]domain.ShiftEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	query := `
		SELECT employee, work_date, day_label, school, shift
		FROM shift_entries
		WHERE work_date >= $1 AND work_date < $2 AND ($3 = '' OR employee = $3)
		ORDER BY id
	`

	rows, err := r.dbpool.QueryContext(ctx, query, from, to, employee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ShiftEntry, 0)
	for rows.Next() {
		var entry domain.ShiftEntry
		var workDate time.Time
		if err := rows.Scan(&entry.Employee, &workDate, &entry.Day, &entry.School, &entry.Shift); err != nil {
			return nil, err
		}
		entry.Date = domain.Date{Year: workDate.Year(), Month: workDate.Month(), Day: workDate.Day()}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *Repository) DeleteShiftEntries(employee string, year int, month time.Month) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	query := `
		DELETE FROM shift_entries WHERE employee = $1 AND work_date >= $2 AND work_date < $3
	`

	if _, err := r.dbpool.ExecContext(ctx, query, employee, from, to); err != nil {
		return err
	}

	return nil
}
