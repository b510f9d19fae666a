package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/ledger"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/utils"
)

// parseOptions 是 parse 和 grid 共用的参数
type parseOptions struct {
	file    string
	year    int
	month   int
	roster  []string
	schools []string
	markers []string
}

func (o *parseOptions) bind(cmd *cobra.Command) {
	now := time.Now()
	cmd.Flags().StringVarP(&o.file, "file", "f", "-", "班表文件，.xlsx 或制表符/逗号分隔的文本，- 表示标准输入")
	cmd.Flags().IntVar(&o.year, "year", now.Year(), "年份")
	cmd.Flags().IntVar(&o.month, "month", int(now.Month()), "月份")
	cmd.Flags().StringSliceVar(&o.roster, "roster", nil, "员工名册，逗号分隔")
	cmd.Flags().StringSliceVar(&o.schools, "schools", timesheet.DefaultSchools, "校区代码，按行的顺序")
	cmd.Flags().StringSliceVar(&o.markers, "markers", nil, "表示没有班次的标记，默认使用内置列表")
}

func (o *parseOptions) entries(in io.Reader) ([]domain.ShiftEntry, error) {
	if err := utils.ValidateYearMonth(o.year, time.Month(o.month)); err != nil {
		return nil, err
	}
	if len(o.roster) == 0 {
		return nil, fmt.Errorf("--roster 不能为空")
	}

	parser := timesheet.NewParser(timesheet.ParserConfig{
		Roster:  o.roster,
		Schools: o.schools,
		Markers: o.markers,
	})

	r := in
	if o.file != "-" {
		f, err := os.Open(o.file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	if strings.EqualFold(filepath.Ext(o.file), ".xlsx") {
		rows, err := ledger.ReadRows(r)
		if err != nil {
			return nil, err
		}
		return parser.ParseRows(rows, o.year, time.Month(o.month)), nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parser.Parse(string(data), o.year, time.Month(o.month)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newParseCmd() *cobra.Command {
	opts := &parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "解析一周的班表，输出班次记录 JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.entries(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
	opts.bind(cmd)

	return cmd
}

func newGridCmd() *cobra.Command {
	opts := &parseOptions{}
	var (
		employee    string
		school      string
		locale      string
		entriesFile string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "为某个员工生成某个校区的月表",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employee == "" {
				return fmt.Errorf("--employee 不能为空")
			}

			var entries []domain.ShiftEntry
			if entriesFile != "" {
				data, err := os.ReadFile(entriesFile)
				if err != nil {
					return err
				}
				entries, err = timesheet.LoadShiftEntries(data)
				if err != nil {
					return err
				}
			} else {
				var err error
				entries, err = opts.entries(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			builder := timesheet.NewGridBuilder(timesheet.Locale(locale))
			grid := builder.Build(timesheet.FilterByEmployee(entries, employee), school, opts.year, time.Month(opts.month))
			grid.Employee = employee

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				return ledger.Write(f, grid)
			}

			return writeJSON(cmd.OutOrStdout(), grid)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&employee, "employee", "", "员工姓名")
	cmd.Flags().StringVar(&school, "school", "M", "校区代码")
	cmd.Flags().StringVar(&locale, "locale", string(timesheet.LocaleZh), "星期的语言 (zh, ja, en)")
	cmd.Flags().StringVar(&entriesFile, "entries", "", "已保存的班次记录 JSON，指定后不再解析班表")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出 xlsx 文件，默认输出 JSON")

	return cmd
}

func newHoursCmd() *cobra.Command {
	var (
		start     string
		end       string
		breakTime string
		policy    string
	)

	cmd := &cobra.Command{
		Use:   "hours",
		Short: "计算一段班次的工作时长和加班",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !timesheet.ValidClock(start) || !timesheet.ValidClock(end) {
				return fmt.Errorf("--start 和 --end 应为 HH:MM 格式")
			}
			p, err := timesheet.PolicyByName(policy, breakTime)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "elapsed: %.2f\n", timesheet.ElapsedHours(start, end))
			fmt.Fprintf(out, "working: %s\n", timesheet.WorkingHours(start, end, p))
			fmt.Fprintf(out, "overtime: %s\n", timesheet.Overtime(start, end, p))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "上班时间 HH:MM")
	cmd.Flags().StringVar(&end, "end", "", "下班时间 HH:MM，早于上班时间表示跨天")
	cmd.Flags().StringVar(&breakTime, "break", "", "休息时长，H:MM 或 H.MM，仅 explicit 策略使用")
	cmd.Flags().StringVar(&policy, "policy", timesheet.PolicyAuto, "休息扣除策略 (auto, explicit)")

	return cmd
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "timesheetctl",
		Short:         "班表解析与考勤表计算工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newParseCmd(), newGridCmd(), newHoursCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
