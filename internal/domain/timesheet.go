package domain

import "time"

type ScheduleRow struct {
	DayOfMonth     int    `json:"dayOfMonth"`
	DayLabel       string `json:"dayLabel"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	BreakTime      string `json:"breakTime"`
	WorkingHours   string `json:"workingHours"`
	NonLessonHours string `json:"nonLessonHours"`
	Overtime       string `json:"overtime"`
	LessonHours    string `json:"lessonHours"`
	Approval       string `json:"approval"`
	Edited         bool   `json:"edited"`
	// Policy 记录 WorkingHours 是由哪种休息扣除策略算出的，决定其小数格式
	Policy         string `json:"policy,omitempty"`
}

// MonthGrid 是某个员工在某个校区某个月的完整考勤表，每天一行
type MonthGrid struct {
	Employee string        `json:"employee"`
	School   string        `json:"school"`
	Year     int           `json:"year"`
	Month    time.Month    `json:"month"`
	Rows     []ScheduleRow `json:"rows"`
}

// Timesheet 是保存到数据库中的月表
type Timesheet struct {
	ID        int64     `json:"id"`
	Grid      MonthGrid `json:"grid"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int32     `json:"version"`
}
