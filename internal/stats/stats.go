// Package stats aggregates judgments and renders practice history.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/verte-zerg/tuidrum/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	last := len(sparkChars) - 1
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(last)))
		b.WriteByte(sparkChars[min(max(idx, 0), last)])
	}
	return b.String()
}

// PassAccuracy returns the accuracy of each pass in order.
func PassAccuracy(js []model.Judgment) []float64 {
	type count struct{ on, total int }
	passes := map[int]*count{}
	maxPass := -1
	for _, j := range js {
		if j.ExpectationIndex == nil {
			continue
		}
		c, ok := passes[j.Pass]
		if !ok {
			c = &count{}
			passes[j.Pass] = c
		}
		c.total++
		if j.Category == model.OnTime {
			c.on++
		}
		maxPass = max(maxPass, j.Pass)
	}
	out := make([]float64, maxPass+1)
	for p, c := range passes {
		out[p] = float64(c.on) / float64(c.total)
	}
	return out
}

// RenderResult prints the review of a single run.
// passes holds per-pass accuracy and is shown when the run looped.
func RenderResult(w io.Writer, title string, sum model.Summary, passes []float64, elapsed time.Duration) error {
	c := sum.Counts
	lines := []string{
		fmt.Sprintf("Review: %s", title),
		fmt.Sprintf("Accuracy: %.1f%% (%d of %d on time)", sum.Accuracy*100, c.OnTime, c.Expected()),
		fmt.Sprintf("Early %d  Late %d  Missed %d  Extra %d", c.Early, c.Late, c.Missed, c.Extra),
		fmt.Sprintf("Mean error: %.1f ms  Bias: %+.1f ms", sum.MeanAbsErrorMs, sum.BiasMs),
		fmt.Sprintf("Longest streak: %d", sum.LongestStreak),
		fmt.Sprintf("Velocity delta: %+.1f", sum.MeanVelocityDelta),
	}
	if len(passes) > 1 {
		parts := make([]string, len(passes))
		for i, acc := range passes {
			parts[i] = fmt.Sprintf("%.0f%%", acc*100)
		}
		lines = append(lines, fmt.Sprintf("Passes: %s  %s", strings.Join(parts, " "), Sparkline(passes)))
	}
	if elapsed > 0 {
		lines = append(lines, fmt.Sprintf("Practice time: %s", durafmt.Parse(elapsed.Round(time.Second)).LimitFirstN(2)))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if len(sum.PerInstrument) == 0 {
		return nil
	}
	headers := []string{"Instrument", "Accuracy", "On", "Early", "Late", "Missed", "Extra", "Bias (ms)"}
	rows := make([][]string, 0, len(sum.PerInstrument))
	for _, is := range sum.PerInstrument {
		rows = append(rows, []string{
			is.Instrument.String(),
			fmt.Sprintf("%.1f%%", is.Accuracy*100),
			fmt.Sprint(is.Counts.OnTime),
			fmt.Sprint(is.Counts.Early),
			fmt.Sprint(is.Counts.Late),
			fmt.Sprint(is.Counts.Missed),
			fmt.Sprint(is.Counts.Extra),
			fmt.Sprintf("%+.1f", is.BiasMs),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true})
}

// RenderJudgments lists judgments one per row.
func RenderJudgments(w io.Writer, js []model.Judgment) error {
	headers := []string{"Pass", "Time (ms)", "Instrument", "Result", "Error (ms)", "Velocity"}
	rows := make([][]string, 0, len(js))
	for _, j := range js {
		errMs, vel := "-", "-"
		if j.ErrorMs != nil {
			errMs = fmt.Sprintf("%+.1f", *j.ErrorMs)
		}
		if j.Velocity != nil {
			vel = fmt.Sprint(*j.Velocity)
		}
		rows = append(rows, []string{
			fmt.Sprint(j.Pass + 1),
			fmt.Sprintf("%.1f", j.TimeMs),
			j.Instrument.String(),
			j.Category.String(),
			errMs,
			vel,
		})
	}
	return writeTable(w, headers, rows, map[int]bool{0: true, 1: true, 4: true, 5: true})
}

// RenderSummary prints a summary of stored sessions.
func RenderSummary(w io.Writer, sessions []model.SessionAggregate) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var accSum, absSum, biasSum float64
	var best float64
	var expected int
	var practiced time.Duration
	for _, s := range sessions {
		accSum += s.Accuracy
		absSum += s.MeanAbsMs
		biasSum += s.BiasMs
		best = math.Max(best, s.Accuracy)
		expected += s.Expected
		practiced += s.Duration()
	}
	n := float64(len(sessions))
	last := sessions[len(sessions)-1]
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d (last %s)", len(sessions), humanize.Time(last.EndedAt)),
		fmt.Sprintf("Last run: %s", last.RunID),
		fmt.Sprintf("Notes graded: %s", humanize.Comma(int64(expected))),
		fmt.Sprintf("Practice time: %s", durafmt.Parse(practiced.Round(time.Second)).LimitFirstN(2)),
		fmt.Sprintf("Avg Accuracy: %.2f%%", accSum/n*100),
		fmt.Sprintf("Best Accuracy: %.2f%%", best*100),
		fmt.Sprintf("Avg Error: %.1f ms", absSum/n),
		fmt.Sprintf("Avg Bias: %+.1f ms", biasSum/n),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints accuracy and timing curves.
func RenderCurves(w io.Writer, sessions []model.SessionAggregate, window int) error {
	return RenderCurvesWithSize(w, sessions, window, 0, 8, false)
}

// RenderCurvesWithSize prints accuracy and timing curves sized to totalWidth.
func RenderCurvesWithSize(w io.Writer, sessions []model.SessionAggregate, window, totalWidth, height int, useColor bool) error {
	if len(sessions) == 0 {
		return nil
	}
	accs := make([]float64, len(sessions))
	errs := make([]float64, len(sessions))
	for i, s := range sessions {
		accs[i] = s.Accuracy * 100
		errs[i] = s.MeanAbsMs
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, "Progress", []Series{
		{Name: "Accuracy %", Values: MovingAverage(accs, window)},
		{Name: "Mean error ms", Values: MovingAverage(errs, window)},
	}, width, height, useColor)
}

// RenderInstrumentTable prints per-instrument aggregates, weakest first.
func RenderInstrumentTable(w io.Writer, aggs []model.InstrumentAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No instrument stats found.")
		return err
	}
	sorted := make([]model.InstrumentAggregate, len(aggs))
	copy(sorted, aggs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Accuracy() < sorted[j].Accuracy()
	})

	if _, err := fmt.Fprintln(w, "Per-Instrument (Windowed)"); err != nil {
		return err
	}
	headers := []string{"Instrument", "Accuracy", "Mean (ms)", "Bias (ms)", "Notes", "Missed", "Extra"}
	rows := make([][]string, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, []string{
			a.Instrument.String(),
			fmt.Sprintf("%.2f%%", a.Accuracy()*100),
			fmt.Sprintf("%.1f", a.MeanAbsMs()),
			fmt.Sprintf("%+.1f", a.BiasMs()),
			humanize.Comma(int64(a.Expected())),
			humanize.Comma(int64(a.Missed)),
			humanize.Comma(int64(a.Extra)),
		})
	}
	if err := writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true}); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderInstrumentCurves prints per-instrument accuracy curves.
func RenderInstrumentCurves(w io.Writer, sessions []model.SessionAggregate, perSession map[int64]map[model.Instrument]model.InstrumentAggregate, insts []model.Instrument, window, totalWidth, height int, useColor bool) error {
	if len(insts) == 0 || len(sessions) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	series := make([]Series, 0, len(insts))
	for _, inst := range insts {
		values := make([]float64, len(sessions))
		for i, s := range sessions {
			if agg, ok := perSession[s.SessionID][inst]; ok {
				values[i] = agg.Accuracy() * 100
			}
		}
		series = append(series, Series{Name: inst.String(), Values: MovingAverage(values, window)})
	}
	return PlotSeriesWithColor(w, "Per-Instrument Accuracy", series, width, height, useColor)
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
