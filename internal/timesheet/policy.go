package timesheet

import (
	"fmt"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

// BreakPolicy 决定如何扣除休息时间以及如何格式化时长。
// 两种策略产生的数值格式不同，已导出的考勤表依赖各自的格式，不能合并。
type BreakPolicy interface {
	Name() string
	netMinutes(elapsed int) (int, bool)
	format(minutes int) string
	parse(s string) (int, bool)
}

const (
	PolicyAuto     = "auto"
	PolicyExplicit = "explicit"
)

// AutoDeductionPolicy 满 9 小时自动扣除 1 小时，结果为真实小数（7.50 表示 7 小时 30 分）
type AutoDeductionPolicy struct{}

func (AutoDeductionPolicy) Name() string { return PolicyAuto }

func (AutoDeductionPolicy) netMinutes(elapsed int) (int, bool) {
	if elapsed >= autoBreakThreshold {
		return elapsed - autoBreakMinutes, true
	}
	return elapsed, true
}

func (AutoDeductionPolicy) format(minutes int) string { return formatDecimal(minutes) }

func (AutoDeductionPolicy) parse(s string) (int, bool) { return parseDecimal(s) }

// ExplicitBreakPolicy 扣除用户填写的休息时间，结果为伪小数（7.30 表示 7 小时 30 分）
type ExplicitBreakPolicy struct {
	Break string
}

func (ExplicitBreakPolicy) Name() string { return PolicyExplicit }

func (p ExplicitBreakPolicy) netMinutes(elapsed int) (int, bool) {
	b, ok := parseBreak(p.Break)
	if !ok {
		return 0, false
	}
	return elapsed - b, true
}

func (ExplicitBreakPolicy) format(minutes int) string { return formatPseudoDecimal(minutes) }

func (ExplicitBreakPolicy) parse(s string) (int, bool) { return parsePseudoDecimal(s) }

// rowPolicy 返回生成该行工作时长的策略。
// 旧数据没有记录策略，未修改过的行一定来自自动扣除。
func rowPolicy(row domain.ScheduleRow) BreakPolicy {
	switch row.Policy {
	case PolicyAuto:
		return AutoDeductionPolicy{}
	case PolicyExplicit:
		return ExplicitBreakPolicy{Break: row.BreakTime}
	}
	if row.Edited {
		return ExplicitBreakPolicy{Break: row.BreakTime}
	}
	return AutoDeductionPolicy{}
}

// PolicyByName 根据名称构造策略，breakTime 只在 explicit 策略下使用
func PolicyByName(name, breakTime string) (BreakPolicy, error) {
	switch name {
	case PolicyAuto, "":
		return AutoDeductionPolicy{}, nil
	case PolicyExplicit:
		return ExplicitBreakPolicy{Break: breakTime}, nil
	default:
		return nil, fmt.Errorf("未知的休息扣除策略 %q", name)
	}
}
