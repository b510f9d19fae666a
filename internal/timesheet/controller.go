package timesheet

import (
	"fmt"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

type Field int

const (
	FieldStartTime Field = iota + 1
	FieldEndTime
	FieldBreakTime
	FieldLessonHours
	FieldApproval
)

// FieldKind 决定修改某个字段之后需要重新计算哪些派生字段
type FieldKind int

const (
	KindOpaque FieldKind = iota // 不影响任何派生字段
	KindTime                    // 重新计算工作时长、非授课时长、加班
	KindLesson                  // 只重新计算非授课时长
)

var fieldNames = map[Field]string{
	FieldStartTime:   "startTime",
	FieldEndTime:     "endTime",
	FieldBreakTime:   "breakTime",
	FieldLessonHours: "lessonHours",
	FieldApproval:    "approval",
}

func ParseField(name string) (Field, error) {
	for field, n := range fieldNames {
		if n == name {
			return field, nil
		}
	}
	return 0, fmt.Errorf("不支持修改字段 %q", name)
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

func (f Field) Valid() bool {
	_, ok := fieldNames[f]
	return ok
}

func (f Field) Kind() FieldKind {
	switch f {
	case FieldStartTime, FieldEndTime, FieldBreakTime:
		return KindTime
	case FieldLessonHours:
		return KindLesson
	default:
		return KindOpaque
	}
}

func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("无效的字段 %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Field) UnmarshalText(text []byte) error {
	field, err := ParseField(string(text))
	if err != nil {
		return err
	}
	*f = field
	return nil
}

type RowState int

const (
	RowEmpty RowState = iota
	RowPopulated
	RowEdited
)

func (s RowState) String() string {
	switch s {
	case RowPopulated:
		return "populated"
	case RowEdited:
		return "edited"
	default:
		return "empty"
	}
}

func StateOf(row domain.ScheduleRow) RowState {
	switch {
	case row.StartTime == "" || row.EndTime == "":
		return RowEmpty
	case row.Edited:
		return RowEdited
	default:
		return RowPopulated
	}
}

type EditCommand struct {
	Row   int    `json:"row"`
	Field Field  `json:"field"`
	Value string `json:"value"`
}

// ApplyEdit 修改一行中的一个字段并重新计算派生字段。
// 返回新的月表，传入的月表不会被修改；行号越界或字段无效时原样返回。
func ApplyEdit(grid *domain.MonthGrid, rowIndex int, field Field, value string) *domain.MonthGrid {
	if grid == nil || rowIndex < 0 || rowIndex >= len(grid.Rows) || !field.Valid() {
		return grid
	}

	next := cloneGrid(grid)
	next.Rows[rowIndex] = editRow(grid.Rows[rowIndex], field, value)
	return next
}

// Apply 按顺序执行多条修改
func Apply(grid *domain.MonthGrid, cmds ...EditCommand) *domain.MonthGrid {
	for _, cmd := range cmds {
		grid = ApplyEdit(grid, cmd.Row, cmd.Field, cmd.Value)
	}
	return grid
}

// Autofill 对所有开始、结束时间都合法的行批量填写同一个值。
// 其余行保持不变，开始、结束时间本身不能被批量填写。
func Autofill(grid *domain.MonthGrid, field Field, value string) *domain.MonthGrid {
	if grid == nil || !field.Valid() || field == FieldStartTime || field == FieldEndTime {
		return grid
	}

	next := cloneGrid(grid)
	for i, row := range grid.Rows {
		if !ValidClock(row.StartTime) || !ValidClock(row.EndTime) {
			continue
		}
		next.Rows[i] = editRow(row, field, value)
	}
	return next
}

func cloneGrid(grid *domain.MonthGrid) *domain.MonthGrid {
	next := *grid
	next.Rows = make([]domain.ScheduleRow, len(grid.Rows))
	copy(next.Rows, grid.Rows)
	return &next
}

func editRow(row domain.ScheduleRow, field Field, value string) domain.ScheduleRow {
	switch field {
	case FieldStartTime:
		row.StartTime = value
	case FieldEndTime:
		row.EndTime = value
	case FieldBreakTime:
		row.BreakTime = value
	case FieldLessonHours:
		row.LessonHours = value
	case FieldApproval:
		row.Approval = value
	}

	switch field.Kind() {
	case KindTime:
		recalculate(&row)
		row.Edited = hasSpan(row)
	case KindLesson:
		if hasSpan(row) {
			row.NonLessonHours = nonLessonHours(row.WorkingHours, row.LessonHours, rowPolicy(row))
		} else {
			row.NonLessonHours = ""
		}
		row.Edited = hasSpan(row)
	}
	return row
}

func hasSpan(row domain.ScheduleRow) bool {
	return row.StartTime != "" && row.EndTime != ""
}

// recalculate 休息时间由用户填写，因此一律按 explicit 策略计算
func recalculate(row *domain.ScheduleRow) {
	if !hasSpan(*row) {
		row.WorkingHours = ""
		row.NonLessonHours = ""
		row.Overtime = ""
		row.Policy = ""
		return
	}

	policy := ExplicitBreakPolicy{Break: row.BreakTime}
	row.Policy = policy.Name()
	row.WorkingHours = WorkingHours(row.StartTime, row.EndTime, policy)
	row.Overtime = Overtime(row.StartTime, row.EndTime, policy)
	row.NonLessonHours = nonLessonHours(row.WorkingHours, row.LessonHours, policy)
}
