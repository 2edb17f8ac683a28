package pipeline

import "tracesig/pkg/models"

// ReportWriter writes analysis reports.
type ReportWriter interface {
	WriteReports(reports []*models.Report) error
	Close() error
}

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}
