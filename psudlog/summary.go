package main

import (
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/playback"
)

const sparkWidth = 60

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// summarize prints the range of every column with a one line trace drawn at
// the column's display scale.
func summarize(w io.Writer, view *playback.View) {
	size := view.Size()
	column := make([]float32, 0, size)
	var points []float32

	for i, d := range view.Descriptors() {
		column = column[:0]
		for r := range size {
			column = append(column, view.Value(r, i))
		}

		lo, hi, ok := playback.MinMax(column)
		if !ok {
			fmt.Fprintf(w, "%-3s no data\n", d.Type)
			continue
		}

		points = playback.Downsample(points, column, sparkWidth)
		fmt.Fprintf(w, "%-3s min %-10.4g max %-10.4g %s\n", d.Type, lo, hi, sparkline(d, points))
	}
}

// sparkline maps values onto the vertical divisions of the graph, bottom to top.
// NaN values are left blank.
func sparkline(d playback.Descriptor, values []float32) string {
	half := float32(playback.NumVertDivisions) / 2
	line := make([]rune, len(values))
	for i, v := range values {
		if math32.IsNaN(v) {
			line[i] = ' '
			continue
		}
		level := int((d.Divisions(v) + half) / (2 * half) * float32(len(sparkLevels)))
		line[i] = sparkLevels[max(0, min(level, len(sparkLevels)-1))]
	}
	return string(line)
}
