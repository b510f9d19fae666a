package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, pinyin := range pinyinArray {
		length := rand.Intn(len(pinyin)) + 1
		username += pinyin[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

func GenerateRandomEmployee(emailDomainName string) *domain.Employee {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)

	return &domain.Employee{
		Username: username,
		FullName: fullName,
		Email:    username + "@" + emailDomainName,
	}
}

var randomMarkers = []string{"办公", "休息", "休"}

// GenerateRandomShiftCell 随机生成班表中的一个单元格：空、标记或者时间段
func GenerateRandomShiftCell() string {
	switch n := rand.Intn(10); {
	case n < 3:
		return ""
	case n < 4:
		return randomMarkers[rand.Intn(len(randomMarkers))]
	case n < 5:
		// 只有上班时间
		return fmt.Sprintf("%02d:%02d", rand.Intn(6)+8, rand.Intn(2)*30)
	default:
		startHour := rand.Intn(6) + 7
		startMinute := rand.Intn(2) * 30
		length := rand.Intn(7) + 4 // 4~10 小时
		return fmt.Sprintf("%02d:%02d-%02d:%02d", startHour, startMinute, (startHour+length)%24, startMinute)
	}
}

// GenerateRandomWeekText 生成从 monday 开始一周的班表文本，用制表符分隔。
// 每个员工按 schools 的顺序各占一行，第一行写姓名。
func GenerateRandomWeekText(names []string, schools []string, monday time.Time) string {
	var b strings.Builder

	dates := make([]string, 0, 7)
	days := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		d := monday.AddDate(0, 0, i)
		dates = append(dates, d.Format("2006/01/02"))
		days = append(days, timesheet.DayLabel(timesheet.LocaleZh, d.Year(), d.Month(), d.Day()))
	}

	b.WriteString("\t\t" + strings.Join(dates, "\t") + "\n")
	b.WriteString("\t\t" + strings.Join(days, "\t") + "\n")

	for _, name := range names {
		for i := range schools {
			label := ""
			if i == 0 {
				label = name
			}
			cells := make([]string, 0, 7)
			for j := 0; j < 7; j++ {
				cells = append(cells, GenerateRandomShiftCell())
			}
			b.WriteString(label + "\t\t" + strings.Join(cells, "\t") + "\n")
		}
	}

	return b.String()
}

// MondaysOfMonth 返回覆盖 (year, month) 的所有周一，第一个周一可能在上个月
func MondaysOfMonth(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(first.Weekday()) + 6) % 7
	monday := first.AddDate(0, 0, -offset)

	mondays := make([]time.Time, 0, 6)
	for ; monday.Year() < year || (monday.Year() == year && monday.Month() <= month); monday = monday.AddDate(0, 0, 7) {
		mondays = append(mondays, monday)
	}

	return mondays
}
