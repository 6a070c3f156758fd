package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/config"
	"github.com/itohio/psudlog/pkg/dlog"
	"github.com/itohio/psudlog/pkg/playback"
)

// dump prints the log file at path as CSV: a time column, the optional jitter
// column and one column per logged value. NaN filler rows are kept.
func dump(w io.Writer, path string) error {
	rec, err := dlog.ReadFile(path)
	if err != nil {
		return err
	}

	view := playback.New(config.Default())
	view.Load(rec, dlog.MaxChannels)

	snapshot, err := playback.LoadSnapshot(path)
	switch {
	case err == nil:
		view.Restore(snapshot)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	h := rec.Header
	fmt.Fprintf(w, "# started %s, period %g s, duration %g s, %d records",
		time.Unix(int64(h.StartTime), 0).UTC().Format(time.RFC3339), h.Period, h.Duration, len(rec.Rows))
	if rec.Truncated {
		fmt.Fprint(w, ", truncated")
	}
	if snapshot.Session != "" {
		fmt.Fprintf(w, ", session %s, cursor %.3f s", snapshot.Session, view.CursorTime())
	}
	fmt.Fprintln(w)

	cw := csv.NewWriter(w)
	names := []string{"t"}
	if h.Jitter {
		names = append(names, "jitter")
	}
	for i := range view.NumValues() {
		names = append(names, view.Label(i))
	}
	if err := cw.Write(names); err != nil {
		return err
	}

	fields := make([]string, 0, len(names))
	for i, row := range rec.Rows {
		fields = fields[:0]
		fields = append(fields, strconv.FormatFloat(float64(i)*float64(h.Period), 'f', 6, 64))
		for _, v := range row {
			fields = append(fields, formatValue(v))
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v float32) string {
	if math32.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
