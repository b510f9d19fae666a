package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/xuri/excelize/v2"
)

const sheetName = "考勤表"

var header = []any{"日期", "星期", "上班", "下班", "休息", "工作时长", "授课时长", "非授课时长", "加班", "审批"}

// ReadRows 读取上传的班表工作簿，优先读取 Sheet1，否则读取第一个工作表
func ReadRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err == nil {
		return rows, nil
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("工作簿中没有工作表")
	}
	return f.GetRows(sheets[0])
}

// FileName 返回导出文件名，例如 张伟_M_2024-05.xlsx
func FileName(grid *domain.MonthGrid) string {
	return fmt.Sprintf("%s_%s_%04d-%02d.xlsx", grid.Employee, grid.School, grid.Year, int(grid.Month))
}

// Write 将月表写成 xlsx
func Write(w io.Writer, grid *domain.MonthGrid) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	title := fmt.Sprintf("%s %s %d年%d月", grid.Employee, grid.School, grid.Year, int(grid.Month))
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return err
	}
	if err := f.MergeCell(sheetName, "A1", "J1"); err != nil {
		return err
	}

	if err := f.SetSheetRow(sheetName, "A2", &header); err != nil {
		return err
	}

	for i, row := range grid.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		values := []any{
			row.DayOfMonth,
			row.DayLabel,
			row.StartTime,
			row.EndTime,
			row.BreakTime,
			row.WorkingHours,
			row.LessonHours,
			row.NonLessonHours,
			row.Overtime,
			row.Approval,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	// 时长列保留字符串，伪小数不能被当成数字重新格式化
	if err := f.SetColWidth(sheetName, "A", "B", 6); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "J", 11); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

// Bytes 是 Write 的便捷版本，用于邮件附件
func Bytes(grid *domain.MonthGrid) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, grid); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
