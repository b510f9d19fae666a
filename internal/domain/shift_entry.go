package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date 是不带时区的日历日期
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate 校验 (year, month, day) 是否是真实存在的日期
func NewDate(year int, month time.Month, day int) (Date, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

var dateLayout = regexp.MustCompile(`^(\d{4})([/-])(\d{1,2})([/-])(\d{1,2})$`)

// ParseDate 同时接受 YYYY/MM/DD 和 YYYY-MM-DD 两种格式，不允许多余的字符
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	m := dateLayout.FindStringSubmatch(s)
	if m == nil || m[2] != m[4] {
		return Date{}, fmt.Errorf("无法解析日期 %q", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[3])
	d, _ := strconv.Atoi(m[5])
	date, ok := NewDate(y, time.Month(mo), d)
	if !ok {
		return Date{}, fmt.Errorf("日期 %q 不存在", s)
	}
	return date, nil
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String 返回解析器使用的 YYYY/MM/DD 形式
func (d Date) String() string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, int(d.Month), d.Day)
}

// Key 返回月表对账使用的 YYYY-MM-DD 形式
func (d Date) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ShiftEntry 是从周班表中解析出的一次值班
type ShiftEntry struct {
	Employee string `json:"Employee"`
	Date     Date   `json:"Date"`
	Day      string `json:"Day"`    // 原表中的星期，仅作记录
	School   string `json:"School"` // 校区代码
	Shift    string `json:"Shift"`  // "HH:MM-HH:MM"，缺少结束时间时为 "HH:MM-"
}
