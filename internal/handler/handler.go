package handler

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/session"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/timesheet"
)

// Repository 由 repository.Repository 实现
type Repository interface {
	GetEmployeeByID(id int64) (*domain.Employee, error)
	GetEmployeeByFullName(fullName string) (*domain.Employee, error)
	GetAllEmployees() ([]*domain.Employee, error)
	GetActiveEmployeeNames() ([]string, error)
	CreateEmployee(employee *domain.Employee) error
	UpdateEmployee(employee *domain.Employee) error
	DeleteEmployee(id int64) error

	InsertShiftEntries(entries []domain.ShiftEntry) error
	GetShiftEntries(employee string, year int, month time.Month) ([]domain.ShiftEntry, error)
	DeleteShiftEntries(employee string, year int, month time.Month) error

	UpsertTimesheet(ts *domain.Timesheet) error
	GetTimesheet(id int64) (*domain.Timesheet, error)
	GetTimesheetByKey(employee, school string, year int, month time.Month) (*domain.Timesheet, error)
	GetTimesheetsByMonth(year int, month time.Month) ([]*domain.Timesheet, error)
	DeleteTimesheet(id int64) error
}

// SessionStore 由 session.Store 实现
type SessionStore interface {
	Create(grid *domain.MonthGrid, saved *domain.Timesheet) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Update(id string, expectedVersion int64, fn func(sess *session.Session) error) (*session.Session, error)
	Delete(id string) error
}

// Publisher 由 *amqp.Channel 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Handler struct {
	validate      *validator.Validate
	config        *config.Config
	repository    Repository
	translator    ut.Translator
	exportChannel Publisher
	sessions      SessionStore
	builder       *timesheet.GridBuilder

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo Repository, exportCh Publisher, sessions SessionStore) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:      validate,
		config:        cfg,
		repository:    repo,
		translator:    trans,
		exportChannel: exportCh,
		sessions:      sessions,
		builder:       timesheet.NewGridBuilder(timesheet.Locale(cfg.Timesheet.Locale)),

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Route("/employees", func(r chi.Router) {
		r.Post("/", h.CreateEmployee)
		r.Get("/", h.GetAllEmployees)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.employee)
			r.Get("/", h.GetEmployee)
			r.Patch("/", h.UpdateEmployee)
			r.Delete("/", h.DeleteEmployee)
		})
	})

	h.Mux.Route("/shift-entries", func(r chi.Router) {
		r.Get("/", h.GetShiftEntries)
		r.Delete("/", h.DeleteShiftEntries)
		r.Post("/parse", h.ParseShiftEntries)
		r.Post("/upload", h.UploadShiftEntries)
	})

	h.Mux.Route("/timesheets", func(r chi.Router) {
		r.Get("/", h.GetTimesheetsByMonth)
		r.Post("/build", h.BuildTimesheet)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(h.editSession)
			r.Get("/", h.GetEditSession)
			r.Delete("/", h.CloseEditSession)
			r.Patch("/rows/{row}", h.EditSessionRow)
			r.Post("/edits", h.ApplySessionEdits)
			r.Post("/autofill", h.AutofillSession)
			r.Post("/save", h.SaveEditSession)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.timesheet)
			r.Get("/", h.GetTimesheet)
			r.Delete("/", h.DeleteTimesheet)
			r.Get("/ledger.xlsx", h.DownloadLedger)
			r.Post("/export", h.ExportTimesheet)
		})
	})
}
