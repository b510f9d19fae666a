package timesheet

import "time"

type Locale string

const (
	LocaleZh Locale = "zh"
	LocaleJa Locale = "ja"
	LocaleEn Locale = "en"
)

// 下标与 time.Weekday 一致，从星期日开始
var dayLabels = map[Locale][7]string{
	LocaleZh: {"周日", "周一", "周二", "周三", "周四", "周五", "周六"},
	LocaleJa: {"日", "月", "火", "水", "木", "金", "土"},
	LocaleEn: {"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
}

func (l Locale) Valid() bool {
	_, ok := dayLabels[l]
	return ok
}

// DayLabel 只根据日期本身计算星期，不信任班表中的星期列
func DayLabel(locale Locale, year int, month time.Month, day int) string {
	labels, ok := dayLabels[locale]
	if !ok {
		labels = dayLabels[LocaleZh]
	}
	return labels[time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()]
}

// DaysInMonth 返回某年某月的天数
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
