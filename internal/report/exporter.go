package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
)

// Exporter periodically writes the class workbook to a directory.
type Exporter struct {
	reporter  *Reporter
	dir       string
	scheduler *gocron.Scheduler
}

// NewExporter creates an exporter writing into dir.
func NewExporter(reporter *Reporter, dir string) *Exporter {
	return &Exporter{
		reporter:  reporter,
		dir:       dir,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules exports on a cron expression and runs them in the
// background until Stop.
func (e *Exporter) Start(cronExpr string) error {
	if _, err := e.scheduler.Cron(cronExpr).Do(e.run); err != nil {
		return fmt.Errorf("scheduling report export %q: %w", cronExpr, err)
	}
	e.scheduler.StartAsync()
	slog.Info("report export scheduled", "cron", cronExpr, "dir", e.dir)
	return nil
}

// Stop terminates scheduled exports.
func (e *Exporter) Stop() {
	e.scheduler.Stop()
}

func (e *Exporter) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	path, err := e.Export(ctx)
	if err != nil {
		slog.Error("report export failed", "error", err)
		return
	}
	slog.Info("report exported", "path", path)
}

// Export writes one workbook named by the report time and returns its path.
// The file is written to a temporary name first and renamed into place.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	rep, err := e.reporter.Class(ctx)
	if err != nil {
		return "", fmt.Errorf("building class report: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, rep); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	name := fmt.Sprintf("class-report-%s.xlsx", rep.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(e.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("renaming report: %w", err)
	}
	return path, nil
}
