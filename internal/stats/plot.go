package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	axisLabelTop        = "max"
	axisLabelBottom     = "min"
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

// Eighth blocks from empty to full.
var blocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var colorPalette = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[34m", // blue
}

// PlotSeries renders one block chart per series.
func PlotSeries(w io.Writer, title string, series []Series, width, height int) error {
	return plotSeries(w, title, series, width, height, false)
}

// PlotSeriesWithColor renders block charts with optional forced color output.
func PlotSeriesWithColor(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	return plotSeries(w, title, series, width, height, forceColor)
}

func plotSeries(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	series = filterSeries(series)
	if len(series) == 0 {
		return nil
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	useColor := shouldUseColor(w, forceColor)

	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for i, s := range series {
		values := resample(s.Values, width)
		lo, hi := bounds(values)
		head := fmt.Sprintf("%s (min %.1f, max %.1f)", s.Name, lo, hi)
		if useColor {
			head = colorPalette[i%len(colorPalette)] + head + colorReset
		}
		if _, err := fmt.Fprintln(w, head); err != nil {
			return err
		}
		for _, line := range blockRows(values, lo, hi, height) {
			if useColor {
				line = colorPalette[i%len(colorPalette)] + line + colorReset
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// blockRows draws values as columns of eighth blocks, top row first.
func blockRows(values []float64, lo, hi float64, height int) []string {
	levels := make([]int, len(values))
	full := height * (len(blocks) - 1)
	for i, v := range values {
		if hi-lo < 1e-9 {
			levels[i] = full / 2
			continue
		}
		levels[i] = int(math.Round((v - lo) / (hi - lo) * float64(full)))
	}
	pad := runewidth.StringWidth(axisLabelTop)
	rows := make([]string, height)
	for r := 0; r < height; r++ {
		label := strings.Repeat(" ", pad)
		switch r {
		case 0:
			label = axisLabelTop
		case height - 1:
			label = runewidth.FillLeft(axisLabelBottom, pad)
		}
		var b strings.Builder
		b.WriteString(label)
		b.WriteString(axisSeparator)
		base := (height - 1 - r) * (len(blocks) - 1)
		for _, lvl := range levels {
			fill := min(max(lvl-base, 0), len(blocks)-1)
			b.WriteRune(blocks[fill])
		}
		rows[r] = strings.TrimRight(b.String(), " ")
	}
	return rows
}

func filterSeries(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

// resample maps values onto width columns, averaging when shrinking.
func resample(values []float64, width int) []float64 {
	if len(values) <= width {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, width)
	step := float64(len(values)) / float64(width)
	for i := range out {
		from := int(float64(i) * step)
		to := max(int(float64(i+1)*step), from+1)
		var sum float64
		for _, v := range values[from:to] {
			sum += v
		}
		out[i] = sum / float64(to-from)
	}
	return out
}

func bounds(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axisWidth := runewidth.StringWidth(axisLabelTop) + runewidth.StringWidth(axisSeparator)
	return max(totalWidth-axisWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
