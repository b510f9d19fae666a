package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/ledger"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/session"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/utils"
)

const ledgerContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BuildTimesheet 根据已保存的班次生成月表并打开编辑会话。
// 该月表已经保存过时默认从保存的版本继续编辑，rebuild 为 true 时重新生成。
func (h *Handler) BuildTimesheet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Employee string `json:"employee" validate:"required"`
		School   string `json:"school" validate:"required"`
		Year     int    `json:"year" validate:"required,min=1970,max=9999"`
		Month    int    `json:"month" validate:"required,min=1,max=12"`
		Rebuild  bool   `json:"rebuild"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateSchool(req.School, h.config.Timesheet.Schools); err != nil {
		h.badRequest(w, r, err)
		return
	}

	month := time.Month(req.Month)

	saved, err := h.repository.GetTimesheetByKey(req.Employee, req.School, req.Year, month)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.internalServerError(w, r, err)
		return
	}

	var grid *domain.MonthGrid
	if saved != nil && !req.Rebuild {
		grid = &saved.Grid
	} else {
		entries, err := h.repository.GetShiftEntries(req.Employee, req.Year, month)
		if err != nil {
			h.internalServerError(w, r, err)
			return
		}
		grid = h.builder.Build(timesheet.FilterByEmployee(entries, req.Employee), req.School, req.Year, month)
		grid.Employee = req.Employee
	}

	sess, err := h.sessions.Create(grid, saved)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "生成考勤表成功", sess)
}

func (h *Handler) GetEditSession(w http.ResponseWriter, r *http.Request) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)
	h.successResponse(w, r, "获取编辑会话成功", sess)
}

func (h *Handler) CloseEditSession(w http.ResponseWriter, r *http.Request) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)

	if err := h.sessions.Delete(sess.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "关闭编辑会话成功", nil)
}

// updateSession 以乐观锁的方式修改会话中的月表
func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request, version int64, edit func(grid *domain.MonthGrid) *domain.MonthGrid) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)

	updated, err := h.sessions.Update(sess.ID, version, func(s *session.Session) error {
		s.Grid = *edit(&s.Grid)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrVersionConflict), errors.Is(err, session.ErrNotFound):
			h.errorResponse(w, r, err.Error())
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "修改考勤表成功", updated)
}

func (h *Handler) EditSessionRow(w http.ResponseWriter, r *http.Request) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)

	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row < 0 || row >= len(sess.Grid.Rows) {
		h.errorResponse(w, r, "行号超出范围")
		return
	}

	var req struct {
		Version int64  `json:"version" validate:"required"`
		Field   string `json:"field" validate:"required"`
		Value   string `json:"value"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	field, err := timesheet.ParseField(req.Field)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateEditValue(field, req.Value); err != nil {
		h.badRequest(w, r, err)
		return
	}

	h.updateSession(w, r, req.Version, func(grid *domain.MonthGrid) *domain.MonthGrid {
		return timesheet.ApplyEdit(grid, row, field, req.Value)
	})
}

// ApplySessionEdits 一次提交多条修改，按顺序执行
func (h *Handler) ApplySessionEdits(w http.ResponseWriter, r *http.Request) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)

	var req struct {
		Version  int64                   `json:"version" validate:"required"`
		Commands []timesheet.EditCommand `json:"commands" validate:"required,min=1"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	for _, cmd := range req.Commands {
		if cmd.Row < 0 || cmd.Row >= len(sess.Grid.Rows) {
			h.errorResponse(w, r, "行号超出范围")
			return
		}
		if err := utils.ValidateEditValue(cmd.Field, cmd.Value); err != nil {
			h.badRequest(w, r, err)
			return
		}
	}

	h.updateSession(w, r, req.Version, func(grid *domain.MonthGrid) *domain.MonthGrid {
		return timesheet.Apply(grid, req.Commands...)
	})
}

func (h *Handler) AutofillSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int64  `json:"version" validate:"required"`
		Field   string `json:"field" validate:"required"`
		Value   string `json:"value"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	field, err := timesheet.ParseField(req.Field)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	if field == timesheet.FieldStartTime || field == timesheet.FieldEndTime {
		h.badRequest(w, r, errors.New("上班和下班时间不能批量填写"))
		return
	}
	if err := utils.ValidateEditValue(field, req.Value); err != nil {
		h.badRequest(w, r, err)
		return
	}

	h.updateSession(w, r, req.Version, func(grid *domain.MonthGrid) *domain.MonthGrid {
		return timesheet.Autofill(grid, field, req.Value)
	})
}

// SaveEditSession 把会话中的月表保存到数据库
func (h *Handler) SaveEditSession(w http.ResponseWriter, r *http.Request) {
	sess := r.Context().Value(EditSessionCtx).(*session.Session)

	var req struct {
		Version int64 `json:"version" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Version != sess.Version {
		h.errorResponse(w, r, session.ErrVersionConflict.Error())
		return
	}

	ts := &domain.Timesheet{
		ID:      sess.TimesheetID,
		Version: sess.TimesheetVersion,
		Grid:    sess.Grid,
	}

	if err := h.repository.UpsertTimesheet(ts); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.ConstraintName == "timesheets_key":
			h.errorResponse(w, r, "该员工本月的考勤表已经保存过，请重新打开后再编辑")
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "考勤表已被其他人修改，请重新打开后再编辑")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	updated, err := h.sessions.Update(sess.ID, req.Version, func(s *session.Session) error {
		s.TimesheetID = ts.ID
		s.TimesheetVersion = ts.Version
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrVersionConflict), errors.Is(err, session.ErrNotFound):
			h.errorResponse(w, r, err.Error())
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "保存考勤表成功", updated)
}

func (h *Handler) GetTimesheetsByMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.readYearMonth(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	timesheets, err := h.repository.GetTimesheetsByMonth(year, month)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取考勤表列表成功", timesheets)
}

func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	ts := r.Context().Value(TimesheetCtx).(*domain.Timesheet)
	h.successResponse(w, r, "获取考勤表成功", ts)
}

func (h *Handler) DeleteTimesheet(w http.ResponseWriter, r *http.Request) {
	ts := r.Context().Value(TimesheetCtx).(*domain.Timesheet)

	if err := h.repository.DeleteTimesheet(ts.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "删除考勤表成功", nil)
}

func (h *Handler) DownloadLedger(w http.ResponseWriter, r *http.Request) {
	ts := r.Context().Value(TimesheetCtx).(*domain.Timesheet)

	var buf bytes.Buffer
	if err := ledger.Write(&buf, &ts.Grid); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ledgerContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ledger.FileName(&ts.Grid)}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("写入考勤表文件失败", "error", err)
	}
}

// ExportTimesheet 把考勤表放入导出队列，由邮件服务生成 xlsx 并发送。
// 不指定收件人时发给考勤表对应的员工。
func (h *Handler) ExportTimesheet(w http.ResponseWriter, r *http.Request) {
	ts := r.Context().Value(TimesheetCtx).(*domain.Timesheet)

	var req struct {
		To string `json:"to" validate:"omitempty,email"`
	}

	if err := h.readOptionalJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	to := req.To
	if to == "" {
		employee, err := h.repository.GetEmployeeByFullName(ts.Grid.Employee)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				h.errorResponse(w, r, "找不到该员工的邮箱，请指定收件人")
			default:
				h.internalServerError(w, r, err)
			}
			return
		}
		to = employee.Email
	}

	// 准备邮件
	mailMessage := domain.MailMessage{
		Type: domain.MailTypeLedgerExport,
		To:   to,
		Data: domain.LedgerExportMailData{
			FullName: ts.Grid.Employee,
			FileName: ledger.FileName(&ts.Grid),
			Grid:     ts.Grid,
		},
	}

	// 对邮件进行序列化
	body, err := json.Marshal(mailMessage)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 将邮件发送到消息队列
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	if err := h.exportChannel.PublishWithContext(
		ctx,
		"",
		h.config.RabbitMQ.ExportQueue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "考勤表已加入导出队列", nil)
}
