package db

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/limbcontrol/internal/httputil"
)

// AttachAdminRoutes mounts tailsql, backup download and history, the
// training set list and the per-class totals chart under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Limb training DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackupDownload))
	debug.Handle("backups", "Recorded database snapshots (JSON)", http.HandlerFunc(db.handleBackups))
	debug.Handle("training-sets", "Saved training sets (JSON)", http.HandlerFunc(db.handleTrainingSets))
	debug.Handle("training-chart", "Samples per class in a training set", http.HandlerFunc(db.handleTrainingChart))
	return nil
}

func (db *DB) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	if err := os.MkdirAll(db.backupDir, 0o755); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "create backup: %v", err)
		return
	}
	tmp, err := os.MkdirTemp(db.backupDir, "download-")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "create backup: %v", err)
		return
	}
	defer os.RemoveAll(tmp)

	name := fmt.Sprintf("backup-%d.db", db.clock.Now().Unix())
	backupPath := filepath.Join(tmp, name)
	if err := db.BackupTo(r.Context(), backupPath); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "create backup: %v", err)
		return
	}
	f, err := os.Open(backupPath)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "open backup file: %v", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		logs.Opsf("backup download interrupted: %v", err)
	}
}

func (db *DB) handleBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := db.Backups(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if backups == nil {
		backups = []Backup{}
	}
	httputil.WriteJSONOK(w, backups)
}

func (db *DB) handleTrainingSets(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sets, err := db.TrainingSets(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if sets == nil {
		sets = []SetSummary{}
	}
	httputil.WriteJSONOK(w, sets)
}

// handleTrainingChart renders a bar chart of samples per class for ?id=,
// defaulting to the latest set.
func (db *DB) handleTrainingChart(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	subtitle := id
	if id == "" {
		sets, err := db.TrainingSets(r.Context(), 1)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		if len(sets) == 0 {
			httputil.WriteError(w, http.StatusNotFound, "no training sets saved")
			return
		}
		id, subtitle = sets[0].ID, sets[0].Description
	}
	totals, err := db.ClassTotals(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	sort.Strings(names)
	y := make([]opts.BarData, len(names))
	for i, n := range names {
		y[i] = opts.BarData{Value: totals[n]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training samples", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Samples per class", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("samples", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "render error: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
