package utils

import (
	"fmt"
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
)

func ValidateYearMonth(year int, month time.Month) error {
	if year < 1970 || year > 9999 {
		return fmt.Errorf("年份 %d 无效", year)
	}
	if month < time.January || month > time.December {
		return fmt.Errorf("月份 %d 无效", month)
	}
	return nil
}

func ValidateSchool(school string, schools []string) error {
	if !slices.Contains(schools, school) {
		return fmt.Errorf("校区 %q 不存在", school)
	}
	return nil
}

// ValidateEditValue 检查修改某个字段时填写的值，空值用于清空字段，总是允许
func ValidateEditValue(field timesheet.Field, value string) error {
	if value == "" {
		return nil
	}

	switch field {
	case timesheet.FieldStartTime, timesheet.FieldEndTime:
		if !timesheet.ValidClock(value) {
			return fmt.Errorf("%s 应为 HH:MM 格式", field)
		}
	case timesheet.FieldBreakTime:
		if !timesheet.ValidBreak(value) {
			return fmt.Errorf("休息时长 %q 格式错误", value)
		}
	case timesheet.FieldLessonHours:
		if !timesheet.ValidHours(value) {
			return fmt.Errorf("授课时长 %q 格式错误", value)
		}
	}

	return nil
}
