package timesheet

import (
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

type GridBuilder struct {
	locale Locale
}

func NewGridBuilder(locale Locale) *GridBuilder {
	if !locale.Valid() {
		locale = LocaleZh
	}
	return &GridBuilder{locale: locale}
}

// Build 为 (school, year, month) 生成整月的考勤表，每天一行。
// 同一天有多条记录时取输入中的第一条，没有记录的日期生成空行。
func (b *GridBuilder) Build(entries []domain.ShiftEntry, school string, year int, month time.Month) *domain.MonthGrid {
	days := DaysInMonth(year, month)
	grid := &domain.MonthGrid{
		School: school,
		Year:   year,
		Month:  month,
		Rows:   make([]domain.ScheduleRow, days),
	}

	byDay := make(map[int]domain.ShiftEntry, days)
	for _, entry := range entries {
		if entry.School != school || entry.Date.Year != year || entry.Date.Month != month {
			continue
		}
		if _, exists := byDay[entry.Date.Day]; exists {
			continue
		}
		byDay[entry.Date.Day] = entry
		if grid.Employee == "" {
			grid.Employee = entry.Employee
		}
	}

	for d := 1; d <= days; d++ {
		row := domain.ScheduleRow{
			DayOfMonth: d,
			DayLabel:   DayLabel(b.locale, year, month, d),
		}
		if entry, ok := byDay[d]; ok {
			row.StartTime, row.EndTime = SplitSpan(entry.Shift)
			row.WorkingHours = WorkingHours(row.StartTime, row.EndTime, AutoDeductionPolicy{})
			if row.WorkingHours != "" {
				row.Policy = PolicyAuto
			}
		}
		grid.Rows[d-1] = row
	}

	return grid
}

// FilterByEmployee 只保留指定员工的记录，保持原有顺序
func FilterByEmployee(entries []domain.ShiftEntry, employee string) []domain.ShiftEntry {
	filtered := make([]domain.ShiftEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Employee == employee {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Schools 按首次出现的顺序返回记录中出现过的校区
func Schools(entries []domain.ShiftEntry) []string {
	seen := make(map[string]bool)
	schools := make([]string, 0)
	for _, entry := range entries {
		if seen[entry.School] {
			continue
		}
		seen[entry.School] = true
		schools = append(schools, entry.School)
	}
	return schools
}

// LoadShiftEntries 读取已保存的 {Employee, Date, Day, School, Shift} 记录。
// 日期或班次无法解析的记录会被丢弃，只有 JSON 本身格式错误时才返回 error。
func LoadShiftEntries(data []byte) ([]domain.ShiftEntry, error) {
	var records []struct {
		Employee string `json:"Employee"`
		Date     string `json:"Date"`
		Day      string `json:"Day"`
		School   string `json:"School"`
		Shift    string `json:"Shift"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	entries := make([]domain.ShiftEntry, 0, len(records))
	for _, record := range records {
		date, err := domain.ParseDate(record.Date)
		if err != nil {
			continue
		}
		span, ok := extractSpan(record.Shift)
		if !ok {
			continue
		}
		entries = append(entries, domain.ShiftEntry{
			Employee: record.Employee,
			Date:     date,
			Day:      record.Day,
			School:   record.School,
			Shift:    span,
		})
	}
	return entries, nil
}
