package eventlog

import (
	"encoding/csv"
	"io"
	"strconv"

	"emperror.dev/errors"
	"github.com/klauspost/pgzip"
)

// Export writes the entries matching the filter to w as CSV.
func (l *Logger) Export(w io.Writer, f Filter) error {
	entries, err := l.Entries(f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Type", "Module", "Message", "Details", "Created At", "Resolved"}); err != nil {
		return errors.Wrap(err, "eventlog: failed to write export header")
	}
	for _, e := range entries {
		resolved := "No"
		if e.Resolved {
			resolved = "Yes"
		}
		module := e.ModuleID
		if module == "" {
			module = "N/A"
		}
		row := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.LogType,
			module,
			e.Message,
			e.Details,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			resolved,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "eventlog: failed to write export row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "eventlog: failed to flush export")
}

// ExportCompressed writes the CSV export through a parallel gzip stream,
// useful when shipping large logs over the API.
func (l *Logger) ExportCompressed(w io.Writer, f Filter) error {
	gz := pgzip.NewWriter(w)
	if err := l.Export(gz, f); err != nil {
		gz.Close()
		return err
	}
	return errors.Wrap(gz.Close(), "eventlog: failed to finalize compressed export")
}
