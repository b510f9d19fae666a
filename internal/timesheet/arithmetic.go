package timesheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	minutesPerDay      = 24 * 60
	maxWorkingMinutes  = 8 * 60
	autoBreakThreshold = 9 * 60
	autoBreakMinutes   = 60
)

// parseClock 将 HH:MM 解析为当天零点起的分钟数
func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, ok := parseDigits(hh)
	if !ok || h > 23 {
		return 0, false
	}
	m, ok := parseDigits(mm)
	if !ok || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ValidClock 判断 s 是否为合法的 HH:MM（小时 0-23，分钟 0-59）
func ValidClock(s string) bool {
	_, ok := parseClock(s)
	return ok
}

// ValidBreak 判断休息时长能否被解析，空值合法
func ValidBreak(s string) bool {
	_, ok := parseBreak(s)
	return ok
}

func ValidHours(s string) bool {
	_, ok := parsePseudoDecimal(s)
	return ok
}

func elapsedMinutes(start, end string) (int, bool) {
	s, ok := parseClock(start)
	if !ok {
		return 0, false
	}
	e, ok := parseClock(end)
	if !ok {
		return 0, false
	}
	if e < s {
		// 跨夜班次
		e += minutesPerDay
	}
	return e - s, true
}

// ElapsedHours 返回 start 到 end 经过的小时数，任一输入无效时返回 0
func ElapsedHours(start, end string) float64 {
	minutes, ok := elapsedMinutes(start, end)
	if !ok {
		return 0
	}
	return float64(minutes) / 60
}

// WorkingHours 扣除休息时间后得到的工作时长，最多 8 小时
func WorkingHours(start, end string, policy BreakPolicy) string {
	net, ok := netMinutes(start, end, policy)
	if !ok || net <= 0 {
		return ""
	}
	return policy.format(min(net, maxWorkingMinutes))
}

// Overtime 返回超出 8 小时上限的部分
func Overtime(start, end string, policy BreakPolicy) string {
	net, ok := netMinutes(start, end, policy)
	if !ok || net <= maxWorkingMinutes {
		return ""
	}
	return policy.format(net - maxWorkingMinutes)
}

func netMinutes(start, end string, policy BreakPolicy) (int, bool) {
	if policy == nil {
		return 0, false
	}
	elapsed, ok := elapsedMinutes(start, end)
	if !ok {
		return 0, false
	}
	return policy.netMinutes(elapsed)
}

// NonLessonHours 用伪小数（小数部分即分钟数）计算工作时长减去授课时长
func NonLessonHours(working, lesson string) string {
	return nonLessonHours(working, lesson, ExplicitBreakPolicy{})
}

// nonLessonHours 按 policy 的格式读写工作时长，授课时长总是伪小数
func nonLessonHours(working, lesson string, policy BreakPolicy) string {
	w, ok := policy.parse(working)
	if !ok {
		return ""
	}
	l, ok := parsePseudoDecimal(lesson)
	if !ok {
		return ""
	}
	if w < l {
		return ""
	}
	return policy.format(w - l)
}

// parsePseudoDecimal 解析 "7.30" 这类写法为 7 小时 30 分。
// 只有一位小数时按两位读，"1.5" 即 1 小时 50 分。
func parsePseudoDecimal(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	hh, mm, _ := strings.Cut(s, ".")
	h, ok := parseDigits(hh)
	if !ok {
		return 0, false
	}
	m := 0
	switch len(mm) {
	case 0:
	case 1:
		d, ok := parseDigits(mm)
		if !ok {
			return 0, false
		}
		m = d * 10
	case 2:
		d, ok := parseDigits(mm)
		if !ok {
			return 0, false
		}
		m = d
	default:
		return 0, false
	}
	if m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func formatPseudoDecimal(minutes int) string {
	return fmt.Sprintf("%d.%02d", minutes/60, minutes%60)
}

// parseDecimal 解析真实小数，"7.75" 即 7 小时 45 分
func parseDecimal(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f * 60)), true
}

func formatDecimal(minutes int) string {
	return strconv.FormatFloat(float64(minutes)/60, 'f', 2, 64)
}

// parseBreak 解析休息时长，可以是 HH:MM 也可以是伪小数，空值视为 0
func parseBreak(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, ok := parseDigits(hh)
		if !ok {
			return 0, false
		}
		m, ok := parseDigits(mm)
		if !ok || len(mm) != 2 || m > 59 {
			return 0, false
		}
		return h*60 + m, true
	}
	return parsePseudoDecimal(s)
}
