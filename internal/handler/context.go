package handler

type ContextKey string

var (
	EmployeeCtx    ContextKey = "employee"
	TimesheetCtx   ContextKey = "timesheet"
	EditSessionCtx ContextKey = "editSession"
)
