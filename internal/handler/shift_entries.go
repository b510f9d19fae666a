package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/ledger"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
)

// newParser 用在职员工作为名册，数据库中没有员工时退回到配置中的名册
func (h *Handler) newParser() (*timesheet.Parser, error) {
	roster, err := h.repository.GetActiveEmployeeNames()
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		roster = h.config.Timesheet.Roster
	}

	return timesheet.NewParser(timesheet.ParserConfig{
		Roster:  roster,
		Schools: h.config.Timesheet.Schools,
		Markers: h.config.Timesheet.Markers,
	}), nil
}

func (h *Handler) saveShiftEntries(w http.ResponseWriter, r *http.Request, entries []domain.ShiftEntry, save bool) {
	if save && len(entries) > 0 {
		if err := h.repository.InsertShiftEntries(entries); err != nil {
			h.internalServerError(w, r, err)
			return
		}
		slog.Info("已保存班次", "count", len(entries))
		h.successResponse(w, r, "解析并保存班次成功", entries)
		return
	}

	h.successResponse(w, r, "解析班次成功", entries)
}

func (h *Handler) ParseShiftEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text" validate:"required"`
		Year  int    `json:"year" validate:"required,min=1970,max=9999"`
		Month int    `json:"month" validate:"required,min=1,max=12"`
		Save  bool   `json:"save"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	parser, err := h.newParser()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	entries := parser.Parse(req.Text, req.Year, time.Month(req.Month))
	h.saveShiftEntries(w, r, entries, req.Save)
}

// UploadShiftEntries 解析上传的 xlsx 班表，表格布局与粘贴的文本相同
func (h *Handler) UploadShiftEntries(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.readYearMonth(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.Server.MaxUploadSize); err != nil {
		h.badRequest(w, r, errors.New("上传的文件过大或格式错误"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, r, errors.New("缺少上传的文件"))
		return
	}
	defer file.Close()

	rows, err := ledger.ReadRows(file)
	if err != nil {
		h.badRequest(w, r, errors.New("无法读取 xlsx 文件"))
		return
	}

	parser, err := h.newParser()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	entries := parser.ParseRows(rows, year, month)
	h.saveShiftEntries(w, r, entries, r.URL.Query().Get("save") == "true")
}

func (h *Handler) GetShiftEntries(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.readYearMonth(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	entries, err := h.repository.GetShiftEntries(r.URL.Query().Get("employee"), year, month)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取班次成功", entries)
}

func (h *Handler) DeleteShiftEntries(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.readYearMonth(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	employee := r.URL.Query().Get("employee")
	if employee == "" {
		h.badRequest(w, r, errors.New("缺少员工姓名"))
		return
	}

	if err := h.repository.DeleteShiftEntries(employee, year, month); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "删除班次成功", nil)
}
