package timesheet

import (
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"golang.org/x/text/width"
)

var (
	DefaultSchools = []string{"M", "T"}
	// 办公、休息等占位内容，不是班次
	DefaultMarkers = []string{"事務", "休み", "公休", "有休", "办公", "休息", "休", "office", "off"}
)

var (
	datePattern = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})`)
	spanPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})(?:\s*[-~]\s*(\d{1,2}):(\d{2}))?`)

	dashReplacer = strings.NewReplacer("〜", "~", "－", "-", "‐", "-", "–", "-", "—", "-")
)

type ParserConfig struct {
	Roster  []string // 已知员工姓名
	Schools []string // 每个员工块中按行顺序对应的校区代码
	Markers []string
}

type Parser struct {
	roster  map[string]string // 去掉空白后的姓名 -> 名册中的姓名
	schools []string
	markers []string
}

func NewParser(cfg ParserConfig) *Parser {
	p := &Parser{
		roster:  make(map[string]string, len(cfg.Roster)),
		schools: cfg.Schools,
		markers: cfg.Markers,
	}
	if len(p.schools) == 0 {
		p.schools = DefaultSchools
	}
	if p.markers == nil {
		p.markers = DefaultMarkers
	}
	for _, name := range cfg.Roster {
		key := nameKey(name)
		if key == "" {
			continue
		}
		if _, exists := p.roster[key]; !exists {
			p.roster[key] = strings.TrimSpace(name)
		}
	}
	return p
}

func normalizeCell(s string) string {
	return strings.TrimSpace(dashReplacer.Replace(width.Fold.String(s)))
}

func nameKey(s string) string {
	return strings.Join(strings.Fields(normalizeCell(s)), "")
}

// SplitRows 把粘贴的表格文本拆成行列，有制表符时按制表符分隔，否则按逗号
func SplitRows(raw string) [][]string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	comma := ','
	if strings.Contains(raw, "\t") {
		comma = '\t'
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err == nil {
		return rows
	}

	// 引号不配对时退回到逐行切分
	rows = rows[:0]
	for _, line := range strings.Split(raw, "\n") {
		rows = append(rows, strings.Split(line, string(comma)))
	}
	return rows
}

// Parse 解析一周的班表文本，只保留 (year, month) 内的记录
func (p *Parser) Parse(raw string, year int, month time.Month) []domain.ShiftEntry {
	return p.ParseRows(SplitRows(raw), year, month)
}

type dateColumn struct {
	index int
	date  domain.Date
	day   string
}

// ParseRows 第 0 行为日期，第 1 行为星期，之后是各员工的班次行。
// 无法识别的单元格直接跳过，整体格式不对时返回空切片。
func (p *Parser) ParseRows(rows [][]string, year int, month time.Month) []domain.ShiftEntry {
	entries := make([]domain.ShiftEntry, 0)
	if len(rows) < 3 {
		return entries
	}

	columns, firstDateColumn := parseHeader(rows[0], rows[1])
	if firstDateColumn <= 0 {
		// 没有日期列，或者没有可以放姓名的标签列
		return entries
	}

	employee := ""
	position := 0
	for _, row := range rows[2:] {
		labels := make([]string, 0, firstDateColumn)
		for i := 0; i < firstDateColumn && i < len(row); i++ {
			labels = append(labels, normalizeCell(row[i]))
		}

		if name, ok := p.matchEmployee(labels); ok {
			if name == employee {
				// 同一个员工的下一行重复写了姓名
				position++
			} else {
				employee = name
				position = 0
			}
		} else if p.hasForeignName(labels) {
			// 名册之外的人，后续行也不属于上一个员工
			employee = ""
			continue
		} else if employee != "" {
			position++
		} else {
			continue
		}

		school, ok := p.schoolFor(labels, position)
		if !ok {
			continue
		}

		for _, col := range columns {
			if col.date.Year != year || col.date.Month != month {
				continue
			}
			if col.index >= len(row) {
				continue
			}
			cell := normalizeCell(row[col.index])
			if cell == "" || p.isMarker(cell) {
				continue
			}
			span, ok := extractSpan(cell)
			if !ok {
				continue
			}
			entries = append(entries, domain.ShiftEntry{
				Employee: employee,
				Date:     col.date,
				Day:      col.day,
				School:   school,
				Shift:    span,
			})
		}
	}

	return entries
}

func parseHeader(dates, days []string) ([]dateColumn, int) {
	columns := make([]dateColumn, 0, len(dates))
	first := -1
	for i, token := range dates {
		date, ok := parseDateToken(normalizeCell(token))
		if !ok {
			continue
		}
		if first < 0 {
			first = i
		}
		day := ""
		if i < len(days) {
			day = normalizeCell(days[i])
		}
		if day == "" {
			continue
		}
		columns = append(columns, dateColumn{index: i, date: date, day: day})
	}
	return columns, first
}

func parseDateToken(token string) (domain.Date, bool) {
	m := datePattern.FindStringSubmatch(token)
	if m == nil {
		return domain.Date{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return domain.NewDate(y, time.Month(mo), d)
}

func (p *Parser) matchEmployee(labels []string) (string, bool) {
	for _, label := range labels {
		if name, ok := p.roster[nameKey(label)]; ok {
			return name, true
		}
	}
	return "", false
}

func (p *Parser) hasForeignName(labels []string) bool {
	for _, label := range labels {
		if label == "" || p.isSchool(label) {
			continue
		}
		if _, ok := extractSpan(label); ok {
			continue
		}
		return true
	}
	return false
}

func (p *Parser) isSchool(label string) bool {
	for _, school := range p.schools {
		if strings.EqualFold(label, school) {
			return true
		}
	}
	return false
}

func (p *Parser) schoolFor(labels []string, position int) (string, bool) {
	for _, label := range labels {
		for _, school := range p.schools {
			if strings.EqualFold(label, school) {
				return school, true
			}
		}
	}
	if position < len(p.schools) {
		return p.schools[position], true
	}
	return "", false
}

func (p *Parser) isMarker(cell string) bool {
	for _, marker := range p.markers {
		if strings.EqualFold(cell, marker) {
			return true
		}
	}
	return false
}

// extractSpan 从单元格中取出 "HH:MM-HH:MM"，只有开始时间时返回 "HH:MM-"
func extractSpan(cell string) (string, bool) {
	m := spanPattern.FindStringSubmatch(normalizeCell(cell))
	if m == nil {
		return "", false
	}
	start, ok := parseClock(m[1] + ":" + m[2])
	if !ok {
		return "", false
	}
	if m[3] == "" {
		return formatClock(start) + "-", true
	}
	end, ok := parseClock(m[3] + ":" + m[4])
	if !ok {
		return "", false
	}
	return formatClock(start) + "-" + formatClock(end), true
}

// SplitSpan 按 "-" 或 "~" 拆分班次，两边去掉空白
func SplitSpan(span string) (string, string) {
	i := strings.IndexAny(span, "-~")
	if i < 0 {
		return strings.TrimSpace(span), ""
	}
	return strings.TrimSpace(span[:i]), strings.TrimSpace(span[i+1:])
}
