package domain

const MailTypeLedgerExport = "ledger_export"

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

// LedgerExportMailData 是导出考勤表邮件的数据
type LedgerExportMailData struct {
	FullName string    `json:"fullName"`
	FileName string    `json:"fileName"`
	Grid     MonthGrid `json:"grid"`
}
