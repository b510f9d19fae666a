package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/ledger"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/session"
	"github.com/xuri/excelize/v2"
)

type fakeRepository struct {
	employees  []*domain.Employee
	entries    []domain.ShiftEntry
	timesheets map[int64]*domain.Timesheet
	nextID     int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		employees: []*domain.Employee{
			{ID: 1, Username: "zhangwei", FullName: "张伟", Email: "zhangwei@example.edu", IsActive: true, Version: 1},
			{ID: 2, Username: "lina", FullName: "李娜", Email: "lina@example.edu", IsActive: false, Version: 1},
		},
		timesheets: make(map[int64]*domain.Timesheet),
	}
}

func (f *fakeRepository) GetEmployeeByID(id int64) (*domain.Employee, error) {
	for _, e := range f.employees {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRepository) GetEmployeeByFullName(fullName string) (*domain.Employee, error) {
	for _, e := range f.employees {
		if e.FullName == fullName {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRepository) GetAllEmployees() ([]*domain.Employee, error) {
	return f.employees, nil
}

func (f *fakeRepository) GetActiveEmployeeNames() ([]string, error) {
	names := make([]string, 0)
	for _, e := range f.employees {
		if e.IsActive {
			names = append(names, e.FullName)
		}
	}
	return names, nil
}

func (f *fakeRepository) CreateEmployee(employee *domain.Employee) error {
	employee.ID = int64(len(f.employees) + 1)
	employee.IsActive = true
	employee.Version = 1
	f.employees = append(f.employees, employee)
	return nil
}

func (f *fakeRepository) UpdateEmployee(employee *domain.Employee) error {
	for i, e := range f.employees {
		if e.ID == employee.ID {
			if e.Version != employee.Version {
				return sql.ErrNoRows
			}
			employee.Version++
			copied := *employee
			f.employees[i] = &copied
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeRepository) DeleteEmployee(id int64) error {
	for i, e := range f.employees {
		if e.ID == id {
			f.employees = append(f.employees[:i], f.employees[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRepository) InsertShiftEntries(entries []domain.ShiftEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeRepository) GetShiftEntries(employee string, year int, month time.Month) ([]domain.ShiftEntry, error) {
	entries := make([]domain.ShiftEntry, 0)
	for _, e := range f.entries {
		if e.Date.Year != year || e.Date.Month != month {
			continue
		}
		if employee != "" && e.Employee != employee {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (f *fakeRepository) DeleteShiftEntries(employee string, year int, month time.Month) error {
	kept := make([]domain.ShiftEntry, 0)
	for _, e := range f.entries {
		if e.Employee == employee && e.Date.Year == year && e.Date.Month == month {
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return nil
}

func (f *fakeRepository) UpsertTimesheet(ts *domain.Timesheet) error {
	now := time.Now()
	if ts.ID == 0 {
		f.nextID++
		ts.ID = f.nextID
		ts.Version = 1
		ts.CreatedAt = now
		ts.UpdatedAt = now
	} else {
		stored, ok := f.timesheets[ts.ID]
		if !ok || stored.Version != ts.Version {
			return sql.ErrNoRows
		}
		ts.Version++
		ts.CreatedAt = stored.CreatedAt
		ts.UpdatedAt = now
	}
	copied := *ts
	f.timesheets[ts.ID] = &copied
	return nil
}

func (f *fakeRepository) GetTimesheet(id int64) (*domain.Timesheet, error) {
	ts, ok := f.timesheets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ts
	return &copied, nil
}

func (f *fakeRepository) GetTimesheetByKey(employee, school string, year int, month time.Month) (*domain.Timesheet, error) {
	for _, ts := range f.timesheets {
		g := ts.Grid
		if g.Employee == employee && g.School == school && g.Year == year && g.Month == month {
			copied := *ts
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRepository) GetTimesheetsByMonth(year int, month time.Month) ([]*domain.Timesheet, error) {
	timesheets := make([]*domain.Timesheet, 0)
	for _, ts := range f.timesheets {
		if ts.Grid.Year == year && ts.Grid.Month == month {
			timesheets = append(timesheets, ts)
		}
	}
	return timesheets, nil
}

func (f *fakeRepository) DeleteTimesheet(id int64) error {
	delete(f.timesheets, id)
	return nil
}

type fakeSessionStore struct {
	sessions map[string]session.Session
	nextID   int
}

func (f *fakeSessionStore) Create(grid *domain.MonthGrid, saved *domain.Timesheet) (*session.Session, error) {
	f.nextID++
	sess := session.Session{ID: "s" + string(rune('0'+f.nextID)), Version: 1, Grid: *grid}
	if saved != nil {
		sess.TimesheetID = saved.ID
		sess.TimesheetVersion = saved.Version
	}
	f.sessions[sess.ID] = sess
	return &sess, nil
}

func (f *fakeSessionStore) Get(id string) (*session.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (f *fakeSessionStore) Update(id string, expectedVersion int64, fn func(sess *session.Session) error) (*session.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.Version != expectedVersion {
		return nil, session.ErrVersionConflict
	}
	if err := fn(&sess); err != nil {
		return nil, err
	}
	sess.Version++
	f.sessions[id] = sess
	return &sess, nil
}

func (f *fakeSessionStore) Delete(id string) error {
	delete(f.sessions, id)
	return nil
}

type fakePublisher struct {
	queue    string
	messages [][]byte
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.queue = key
	f.messages = append(f.messages, msg.Body)
	return nil
}

type testEnv struct {
	handler   *Handler
	repo      *fakeRepository
	sessions  *fakeSessionStore
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = 1 << 20
	cfg.RabbitMQ.ExportQueue = "ledger_export_queue"
	cfg.RabbitMQ.PublishTimeout = 1
	cfg.Timesheet.Schools = []string{"M", "T"}
	cfg.Timesheet.Locale = "zh"

	env := &testEnv{
		repo:      newFakeRepository(),
		sessions:  &fakeSessionStore{sessions: make(map[string]session.Session)},
		publisher: &fakePublisher{},
	}

	h, err := NewHandler(cfg, env.repo, env.publisher, env.sessions)
	require.NoError(t, err)
	h.RegisterRoutes()
	env.handler = h

	return env
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, target string, body any) testResponse {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.handler.Mux.ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const mayText = "\t\t2024/05/01\t2024/05/02\n" +
	"\t\t周三\t周四\n" +
	"张伟\t\t09:00-18:00\t10:00-19:00\n" +
	"\t\t08:00-12:00\t休\n" +
	"李娜\t\t09:00-18:00\t\n"

func TestParseShiftEntriesSaves(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/shift-entries/parse", map[string]any{
		"text": mayText, "year": 2024, "month": 5, "save": true,
	})
	require.True(t, resp.Success, resp.Message)

	var entries []domain.ShiftEntry
	require.NoError(t, json.Unmarshal(resp.Data, &entries))

	// 李娜已离职，不在名册中
	require.Len(t, entries, 3)
	assert.Equal(t, "张伟", entries[0].Employee)
	assert.Equal(t, "T", entries[2].School)
	assert.Equal(t, entries, env.repo.entries)
}

func TestParseShiftEntriesValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/shift-entries/parse", map[string]any{
		"text": mayText, "year": 2024, "month": 13,
	})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
	assert.Empty(t, env.repo.entries)
}

func TestUploadShiftEntries(t *testing.T) {
	env := newTestEnv(t)

	f := excelize.NewFile()
	rows := [][]any{
		{"", "", "2024/05/01", "2024/05/02"},
		{"", "", "周三", "周四"},
		{"张伟", "", "09:00-18:00", "办公"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "week.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/shift-entries/upload?year=2024&month=5&save=true", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success, resp.Message)
	require.Len(t, env.repo.entries, 1)
	assert.Equal(t, "09:00-18:00", env.repo.entries[0].Shift)
}

func TestEditSessionFlow(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.do(t, http.MethodPost, "/shift-entries/parse", map[string]any{
		"text": mayText, "year": 2024, "month": 5, "save": true,
	}).Success)

	resp := env.do(t, http.MethodPost, "/timesheets/build", map[string]any{
		"employee": "张伟", "school": "M", "year": 2024, "month": 5,
	})
	require.True(t, resp.Success, resp.Message)

	var sess session.Session
	require.NoError(t, json.Unmarshal(resp.Data, &sess))
	require.Len(t, sess.Grid.Rows, 31)
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, "张伟", sess.Grid.Employee)
	assert.Equal(t, "09:00", sess.Grid.Rows[0].StartTime)
	assert.Equal(t, "18:00", sess.Grid.Rows[0].EndTime)
	assert.Equal(t, "周三", sess.Grid.Rows[0].DayLabel)

	base := "/timesheets/sessions/" + sess.ID

	// 修改休息时间
	resp = env.do(t, http.MethodPatch, base+"/rows/0", map[string]any{
		"version": 1, "field": "breakTime", "value": "1:00",
	})
	require.True(t, resp.Success, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &sess))
	assert.Equal(t, int64(2), sess.Version)
	assert.Equal(t, "8.00", sess.Grid.Rows[0].WorkingHours)
	assert.True(t, sess.Grid.Rows[0].Edited)

	// 旧版本号被拒绝
	resp = env.do(t, http.MethodPatch, base+"/rows/0", map[string]any{
		"version": 1, "field": "breakTime", "value": "0:30",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, session.ErrVersionConflict.Error(), resp.Message)

	// 批量填写授课时长，只影响有班次的行
	resp = env.do(t, http.MethodPost, base+"/autofill", map[string]any{
		"version": 2, "field": "lessonHours", "value": "3.00",
	})
	require.True(t, resp.Success, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &sess))
	assert.Equal(t, "5.00", sess.Grid.Rows[0].NonLessonHours)
	assert.Equal(t, "3.00", sess.Grid.Rows[1].LessonHours)
	assert.Empty(t, sess.Grid.Rows[2].LessonHours)

	// 保存
	resp = env.do(t, http.MethodPost, base+"/save", map[string]any{"version": 3})
	require.True(t, resp.Success, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &sess))
	assert.Equal(t, int64(1), sess.TimesheetID)
	assert.Equal(t, int32(1), sess.TimesheetVersion)
	require.Contains(t, env.repo.timesheets, int64(1))
	assert.Equal(t, "5.00", env.repo.timesheets[1].Grid.Rows[0].NonLessonHours)

	// 再次打开时从保存的版本继续
	resp = env.do(t, http.MethodPost, "/timesheets/build", map[string]any{
		"employee": "张伟", "school": "M", "year": 2024, "month": 5,
	})
	require.True(t, resp.Success, resp.Message)
	var reopened session.Session
	require.NoError(t, json.Unmarshal(resp.Data, &reopened))
	assert.Equal(t, int64(1), reopened.TimesheetID)
	assert.Equal(t, "3.00", reopened.Grid.Rows[0].LessonHours)
}

func TestEditSessionRejectsInvalidEdits(t *testing.T) {
	env := newTestEnv(t)
	grid := &domain.MonthGrid{Employee: "张伟", School: "M", Year: 2024, Month: time.May, Rows: make([]domain.ScheduleRow, 31)}
	sess, err := env.sessions.Create(grid, nil)
	require.NoError(t, err)
	base := "/timesheets/sessions/" + sess.ID

	tests := map[string]struct {
		target string
		body   map[string]any
	}{
		"派生字段": {base + "/rows/0", map[string]any{"version": 1, "field": "workingHours", "value": "8.00"}},
		"时间格式": {base + "/rows/0", map[string]any{"version": 1, "field": "startTime", "value": "9点"}},
		"行号越界": {base + "/rows/31", map[string]any{"version": 1, "field": "approval", "value": "ok"}},
		"批量填写时间": {base + "/autofill", map[string]any{"version": 1, "field": "endTime", "value": "18:00"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			method := http.MethodPatch
			if strings.HasSuffix(tt.target, "/autofill") {
				method = http.MethodPost
			}
			resp := env.do(t, method, tt.target, tt.body)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}

	// 会话没有被修改
	stored, err := env.sessions.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestApplySessionEdits(t *testing.T) {
	env := newTestEnv(t)
	grid := &domain.MonthGrid{Employee: "张伟", School: "M", Year: 2024, Month: time.May, Rows: make([]domain.ScheduleRow, 31)}
	sess, err := env.sessions.Create(grid, nil)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/timesheets/sessions/"+sess.ID+"/edits", map[string]any{
		"version": 1,
		"commands": []map[string]any{
			{"row": 4, "field": "startTime", "value": "09:00"},
			{"row": 4, "field": "endTime", "value": "19:00"},
			{"row": 4, "field": "breakTime", "value": "1:00"},
		},
	})
	require.True(t, resp.Success, resp.Message)

	var updated session.Session
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, "8.00", updated.Grid.Rows[4].WorkingHours)
	assert.Equal(t, "1.00", updated.Grid.Rows[4].Overtime)
}

func TestEditSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/timesheets/sessions/missing", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, session.ErrNotFound.Error(), resp.Message)
}

func TestBuildTimesheetRejectsUnknownSchool(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/timesheets/build", map[string]any{
		"employee": "张伟", "school": "X", "year": 2024, "month": 5,
	})
	assert.False(t, resp.Success)
	assert.Empty(t, env.sessions.sessions)
}

func saveSampleTimesheet(t *testing.T, env *testEnv) *domain.Timesheet {
	t.Helper()
	ts := &domain.Timesheet{Grid: domain.MonthGrid{
		Employee: "张伟", School: "M", Year: 2024, Month: time.May,
		Rows: []domain.ScheduleRow{{DayOfMonth: 1, DayLabel: "周三", StartTime: "09:00", EndTime: "18:00", WorkingHours: "8.00"}},
	}}
	require.NoError(t, env.repo.UpsertTimesheet(ts))
	return ts
}

func TestDownloadLedger(t *testing.T) {
	env := newTestEnv(t)
	saveSampleTimesheet(t, env)

	req := httptest.NewRequest(http.MethodGet, "/timesheets/1/ledger.xlsx", nil)
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledgerContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rows, err := ledger.ReadRows(rec.Body)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "日期", rows[1][0])
	assert.Equal(t, "09:00", rows[2][2])
}

func TestExportTimesheetPublishes(t *testing.T) {
	env := newTestEnv(t)
	saveSampleTimesheet(t, env)

	resp := env.do(t, http.MethodPost, "/timesheets/1/export", map[string]any{})
	require.True(t, resp.Success, resp.Message)

	assert.Equal(t, "ledger_export_queue", env.publisher.queue)
	require.Len(t, env.publisher.messages, 1)

	var msg struct {
		Type string                      `json:"type"`
		To   string                      `json:"to"`
		Data domain.LedgerExportMailData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.publisher.messages[0], &msg))
	assert.Equal(t, domain.MailTypeLedgerExport, msg.Type)
	assert.Equal(t, "zhangwei@example.edu", msg.To)
	assert.Equal(t, "张伟_M_2024-05.xlsx", msg.Data.FileName)
	assert.Equal(t, "09:00", msg.Data.Grid.Rows[0].StartTime)
}

func TestExportTimesheetEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	saveSampleTimesheet(t, env)

	// 不带请求体时发给员工本人
	resp := env.do(t, http.MethodPost, "/timesheets/1/export", nil)
	require.True(t, resp.Success, resp.Message)

	resp = env.do(t, http.MethodPost, "/timesheets/1/export", map[string]any{"to": "hr@example.edu"})
	require.True(t, resp.Success, resp.Message)

	require.Len(t, env.publisher.messages, 2)
	var first, second domain.MailMessage
	require.NoError(t, json.Unmarshal(env.publisher.messages[0], &first))
	require.NoError(t, json.Unmarshal(env.publisher.messages[1], &second))
	assert.Equal(t, "zhangwei@example.edu", first.To)
	assert.Equal(t, "hr@example.edu", second.To)

	req := httptest.NewRequest(http.MethodPost, "/timesheets/1/export", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)
	var bad testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.False(t, bad.Success)
	assert.Len(t, env.publisher.messages, 2)
}

func TestExportTimesheetUnknownRecipient(t *testing.T) {
	env := newTestEnv(t)
	ts := saveSampleTimesheet(t, env)
	env.repo.timesheets[ts.ID].Grid.Employee = "王芳"

	resp := env.do(t, http.MethodPost, "/timesheets/1/export", map[string]any{})
	assert.False(t, resp.Success)
	assert.Empty(t, env.publisher.messages)
}

func TestEmployees(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/employees", map[string]any{
		"username": "wangfang", "fullName": "王芳", "email": "not-an-email",
	})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	resp = env.do(t, http.MethodPost, "/employees", map[string]any{
		"username": "wangfang", "fullName": "王芳", "email": "wangfang@example.edu",
	})
	require.True(t, resp.Success, resp.Message)

	resp = env.do(t, http.MethodPatch, "/employees/3", map[string]any{"isActive": false})
	require.True(t, resp.Success, resp.Message)

	var employee domain.Employee
	require.NoError(t, json.Unmarshal(resp.Data, &employee))
	assert.False(t, employee.IsActive)
	assert.Equal(t, "王芳", employee.FullName)

	resp = env.do(t, http.MethodGet, "/employees/99", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "员工不存在", resp.Message)
}
