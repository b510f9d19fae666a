package seed

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/utils"
)

// Store 是 seed 用到的 repository 方法
type Store interface {
	GetEmployeeByFullName(fullName string) (*domain.Employee, error)
	CreateEmployee(employee *domain.Employee) error
	GetActiveEmployeeNames() ([]string, error)
	InsertShiftEntries(entries []domain.ShiftEntry) error
}

var employeeHeaders = []string{"用户名", "姓名", "邮箱"}

// ReadEmployees 读取员工名单，表头必须包含 用户名、姓名、邮箱 三列
func ReadEmployees(r io.Reader) ([]*domain.Employee, error) {
	reader := csv.NewReader(r)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	index := make(map[string]int, len(headers))
	for i, header := range headers {
		index[header] = i
	}
	for _, header := range employeeHeaders {
		if _, ok := index[header]; !ok {
			return nil, fmt.Errorf("没有找到 %s 列", header)
		}
	}

	employees := make([]*domain.Employee, 0)
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		employees = append(employees, &domain.Employee{
			Username: row[index["用户名"]],
			FullName: row[index["姓名"]],
			Email:    row[index["邮箱"]],
		})
	}

	return employees, nil
}

// ImportEmployees 插入数据库中还不存在的员工，返回新插入的数量
func ImportEmployees(s Store, employees []*domain.Employee) int {
	cnt := 0
	for _, employee := range employees {
		if employee.FullName == "" {
			slog.Error("没有找到姓名", "username", employee.Username)
			continue
		}

		_, err := s.GetEmployeeByFullName(employee.FullName)
		switch {
		case err == nil:
			// 已经存在
			continue
		case !errors.Is(err, sql.ErrNoRows):
			slog.Error("获取员工失败", "error", err)
			continue
		}

		if err := s.CreateEmployee(employee); err != nil {
			slog.Error("插入员工失败", "error", err)
			continue
		}
		cnt++
	}

	return cnt
}

func newParser(s Store, cfg *config.Config) (*timesheet.Parser, error) {
	roster, err := s.GetActiveEmployeeNames()
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		roster = cfg.Timesheet.Roster
	}

	return timesheet.NewParser(timesheet.ParserConfig{
		Roster:  roster,
		Schools: cfg.Timesheet.Schools,
		Markers: cfg.Timesheet.Markers,
	}), nil
}

// ImportShiftText 解析一段班表文本并保存 (year, month) 内的班次
func ImportShiftText(s Store, cfg *config.Config, text string, year int, month time.Month) (int, error) {
	parser, err := newParser(s, cfg)
	if err != nil {
		return 0, err
	}

	entries := parser.Parse(text, year, month)
	if len(entries) == 0 {
		return 0, nil
	}

	if err := s.InsertShiftEntries(entries); err != nil {
		return 0, err
	}

	return len(entries), nil
}

// SeedRandomShifts 为所有在职员工生成 (year, month) 每一周的随机班表并保存
func SeedRandomShifts(s Store, cfg *config.Config, year int, month time.Month) (int, error) {
	names, err := s.GetActiveEmployeeNames()
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, errors.New("数据库中没有在职员工")
	}

	total := 0
	for _, monday := range utils.MondaysOfMonth(year, month) {
		text := utils.GenerateRandomWeekText(names, cfg.Timesheet.Schools, monday)
		n, err := ImportShiftText(s, cfg, text, year, month)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

// SplitWeeks 按空行把多周的班表拆开。
// 只含制表符的行是某个员工没有班次的一行，不算空行。
func SplitWeeks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	weeks := make([]string, 0)
	current := make([]string, 0)
	flush := func() {
		if len(current) > 0 {
			weeks = append(weeks, strings.Join(current, "\n"))
			current = current[:0]
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" && !strings.Contains(line, "\t") {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return weeks
}

// SeedRealData 导入 dir 下的 employees.csv 和 shifts.tsv，后者可以包含多周，周与周之间用空行分隔
func SeedRealData(s Store, cfg *config.Config, dir string, year int, month time.Month) {
	employeesFile, err := os.Open(filepath.Join(dir, "employees.csv"))
	if err != nil {
		slog.Error("打开文件失败", "error", err)
		return
	}
	defer employeesFile.Close()

	employees, err := ReadEmployees(employeesFile)
	if err != nil {
		slog.Error("读取员工名单失败", "error", err)
		return
	}
	slog.Info("插入员工完成", "count", ImportEmployees(s, employees))

	data, err := os.ReadFile(filepath.Join(dir, "shifts.tsv"))
	if err != nil {
		slog.Error("打开文件失败", "error", err)
		return
	}

	total := 0
	for _, week := range SplitWeeks(string(data)) {
		n, err := ImportShiftText(s, cfg, week, year, month)
		if err != nil {
			slog.Error("插入班次失败", "error", err)
			return
		}
		total += n
	}

	slog.Info("插入数据完成", "count", total)
}
