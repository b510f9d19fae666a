package seed

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

type fakeStore struct {
	employees []*domain.Employee
	entries   []domain.ShiftEntry
}

func (f *fakeStore) GetEmployeeByFullName(fullName string) (*domain.Employee, error) {
	for _, e := range f.employees {
		if e.FullName == fullName {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) CreateEmployee(employee *domain.Employee) error {
	employee.ID = int64(len(f.employees) + 1)
	employee.IsActive = true
	f.employees = append(f.employees, employee)
	return nil
}

func (f *fakeStore) GetActiveEmployeeNames() ([]string, error) {
	names := make([]string, 0)
	for _, e := range f.employees {
		if e.IsActive {
			names = append(names, e.FullName)
		}
	}
	return names, nil
}

func (f *fakeStore) InsertShiftEntries(entries []domain.ShiftEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Timesheet.Schools = []string{"M", "T"}
	return cfg
}

func TestReadEmployees(t *testing.T) {
	employees, err := ReadEmployees(strings.NewReader("姓名,邮箱,用户名\n张伟,zhangwei@example.edu,zhangwei\n"))
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "zhangwei", employees[0].Username)
	assert.Equal(t, "张伟", employees[0].FullName)
	assert.Equal(t, "zhangwei@example.edu", employees[0].Email)

	_, err = ReadEmployees(strings.NewReader("姓名,邮箱\n张伟,zhangwei@example.edu\n"))
	assert.Error(t, err)
}

func TestImportEmployeesSkipsExisting(t *testing.T) {
	s := &fakeStore{}
	employees := []*domain.Employee{
		{Username: "zhangwei", FullName: "张伟"},
		{Username: "zhangwei2", FullName: "张伟"},
		{Username: "noname"},
	}

	assert.Equal(t, 1, ImportEmployees(s, employees))
	assert.Len(t, s.employees, 1)
}

func TestSplitWeeks(t *testing.T) {
	text := "a\tb\r\n\t\t\r\n\r\nc\td\n\n\n"
	assert.Equal(t, []string{"a\tb\n\t\t", "c\td"}, SplitWeeks(text))
	assert.Empty(t, SplitWeeks("\n\n"))
}

func TestSeedRealData(t *testing.T) {
	s := &fakeStore{}

	SeedRealData(s, testConfig(), "./data", 2024, time.May)

	require.Len(t, s.employees, 3)
	require.Len(t, s.entries, 8)
	for _, e := range s.entries {
		assert.Equal(t, time.May, e.Date.Month)
	}
	assert.Equal(t, domain.ShiftEntry{
		Employee: "李娜", Date: domain.Date{Year: 2024, Month: time.May, Day: 1}, Day: "周三", School: "T", Shift: "12:00-20:00",
	}, s.entries[3])
}

func TestSeedRandomShifts(t *testing.T) {
	s := &fakeStore{}
	_, err := SeedRandomShifts(s, testConfig(), 2024, time.May)
	assert.Error(t, err)

	require.NoError(t, s.CreateEmployee(&domain.Employee{FullName: "张伟"}))
	n, err := SeedRandomShifts(s, testConfig(), 2024, time.May)
	require.NoError(t, err)
	assert.Equal(t, n, len(s.entries))
	for _, e := range s.entries {
		assert.Equal(t, "张伟", e.Employee)
		assert.Equal(t, time.May, e.Date.Month)
	}
}
