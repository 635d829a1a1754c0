// Package main provides the CLI entrypoint for tuidrum.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/config"
	"github.com/verte-zerg/tuidrum/internal/generator"
	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/input/midi"
	"github.com/verte-zerg/tuidrum/internal/library"
	"github.com/verte-zerg/tuidrum/internal/logging"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/replay"
	"github.com/verte-zerg/tuidrum/internal/session"
	"github.com/verte-zerg/tuidrum/internal/stats"
	"github.com/verte-zerg/tuidrum/internal/statsui"
	"github.com/verte-zerg/tuidrum/internal/store"
	"github.com/verte-zerg/tuidrum/internal/tempo"
	"github.com/verte-zerg/tuidrum/internal/timeline"
	"github.com/verte-zerg/tuidrum/internal/tui"
)

const (
	defaultLoops         = 4
	defaultTempoScale    = 1.0
	defaultCountdownBars = 1
	defaultWeakTop       = 3
	defaultWeakWindow    = 20
	defaultWeakFactor    = 2.0
	defaultCurveWindow   = 20
	defaultPollInterval  = time.Millisecond
)

type practiceFlags struct {
	loops         int
	freePlay      bool
	tempoScale    float64
	countdownBars int
	everyLoop     bool
	fromBeat      float64
	toBeat        float64
	latencyMs     float64
	matchPct      float64
	matchCapMs    float64
	onTimePct     float64
	onTimeCapMs   float64
	device        string
	keyboard      bool
	queueSize     int
	logPath       string
	debug         bool
}

var (
	practice practiceFlags

	replaySave bool

	drillBars     int
	drillBPM      float64
	drillSeed     int64
	drillOut      string
	drillTitle    string
	drillFocus    bool
	drillWeakTop  int
	drillWeakWin  int
	drillFactor   float64
	drillGhostPct float64

	chartsQuery      string
	chartsInstrument string

	inspectTimeline bool

	statsChart       string
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsInstruments string
	statsText        bool
	statsRun         string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tuidrum <chart>",
		Short:         "TUI drum practice trainer",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.ExactArgs(1),
		RunE:          runPracticeCmd,
	}
	addSessionFlags(rootCmd)
	rootCmd.Flags().BoolVar(&practice.freePlay, "free", false, "loop forever without review")
	rootCmd.Flags().StringVar(&practice.device, "device", "", "MIDI input name pattern (empty: keyboard only)")
	rootCmd.Flags().BoolVar(&practice.keyboard, "keyboard", true, "accept keyboard pads")
	rootCmd.Flags().IntVar(&practice.queueSize, "queue-size", input.DefaultQueueSize, "hit queue capacity")
	rootCmd.Flags().StringVar(&practice.logPath, "log", config.DefaultLogPath(), "diagnostic log file (empty disables)")
	rootCmd.Flags().BoolVar(&practice.debug, "debug", false, "log debug diagnostics")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newChartsCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newDrillCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

// addSessionFlags registers the flags shared by practice and replay.
func addSessionFlags(cmd *cobra.Command) {
	w := session.DefaultWindows
	cmd.Flags().IntVar(&practice.loops, "loops", defaultLoops, "passes per test run")
	cmd.Flags().Float64Var(&practice.tempoScale, "tempo", defaultTempoScale, "tempo multiplier")
	cmd.Flags().IntVar(&practice.countdownBars, "countdown", defaultCountdownBars, "count-in bars")
	cmd.Flags().BoolVar(&practice.everyLoop, "every-loop", false, "count in before every pass")
	cmd.Flags().Float64Var(&practice.fromBeat, "from", 0, "loop start beat")
	cmd.Flags().Float64Var(&practice.toBeat, "to", 0, "loop end beat (0: end of chart)")
	cmd.Flags().Float64Var(&practice.latencyMs, "latency", 0, "input latency offset in ms")
	cmd.Flags().Float64Var(&practice.matchPct, "match-pct", w.MatchPct, "match window as a share of a beat")
	cmd.Flags().Float64Var(&practice.matchCapMs, "match-cap", w.MatchCapMs, "match window cap in ms")
	cmd.Flags().Float64Var(&practice.onTimePct, "on-time-pct", w.OnTimePct, "on-time window as a share of a beat")
	cmd.Flags().Float64Var(&practice.onTimeCapMs, "on-time-cap", w.OnTimeCapMs, "on-time window cap in ms")
}

func loadFileConfig() (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fileCfg, nil
}

// sessionConfig merges file values under explicit flags.
func sessionConfig(cmd *cobra.Command, fileCfg config.FileConfig) model.SessionConfig {
	p := fileCfg.Practice
	applyIntConfig(cmd, "loops", &practice.loops, p.Loops)
	applyFloatConfig(cmd, "tempo", &practice.tempoScale, p.TempoScale)
	applyIntConfig(cmd, "countdown", &practice.countdownBars, p.CountdownBars)
	applyBoolConfig(cmd, "every-loop", &practice.everyLoop, p.CountdownEveryLoop)
	applyFloatConfig(cmd, "latency", &practice.latencyMs, p.LatencyMs)
	applyFloatConfig(cmd, "match-pct", &practice.matchPct, p.MatchPct)
	applyFloatConfig(cmd, "match-cap", &practice.matchCapMs, p.MatchCapMs)
	applyFloatConfig(cmd, "on-time-pct", &practice.onTimePct, p.OnTimePct)
	applyFloatConfig(cmd, "on-time-cap", &practice.onTimeCapMs, p.OnTimeCapMs)

	loops := practice.loops
	if practice.freePlay {
		loops = 0
	}
	return model.SessionConfig{
		LoopStartBeat:      practice.fromBeat,
		LoopEndBeat:        practice.toBeat,
		LoopCount:          loops,
		TempoScale:         practice.tempoScale,
		CountdownBars:      practice.countdownBars,
		CountdownEveryLoop: practice.everyLoop,
		LatencyOffsetMs:    practice.latencyMs,
		Windows: model.Windows{
			MatchPct:    practice.matchPct,
			MatchCapMs:  practice.matchCapMs,
			OnTimePct:   practice.onTimePct,
			OnTimeCapMs: practice.onTimeCapMs,
		},
	}
}

func inputProfile(fileCfg config.FileConfig) (*input.Profile, *input.PadMap, error) {
	pads, err := fileCfg.PadMap()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build pad map: %w", err)
	}
	profile := input.DefaultProfile()
	profile.Mapper = pads
	if cc := fileCfg.Input.HiHatCC; cc != nil {
		if *cc < 0 || *cc > 127 {
			return nil, nil, fmt.Errorf("input: hihat-cc %d out of range", *cc)
		}
		profile.Controller = uint8(*cc)
	}
	return profile, pads, nil
}

func loadChart(path string) (*chart.Chart, error) {
	c, err := chart.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}
	return c, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func runPracticeCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg := sessionConfig(cmd, fileCfg)
	applyStringConfig(cmd, "device", &practice.device, fileCfg.Input.Device)
	applyBoolConfig(cmd, "keyboard", &practice.keyboard, fileCfg.Input.Keyboard)
	applyIntConfig(cmd, "queue-size", &practice.queueSize, fileCfg.Input.QueueSize)

	logger, err := logging.New(practice.logPath, practice.debug)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() {
		// Best-effort flush; file sinks may report spurious sync errors.
		_ = logger.Sync()
	}()

	c, err := loadChart(args[0])
	if err != nil {
		return err
	}
	profile, pads, err := inputProfile(fileCfg)
	if err != nil {
		return err
	}
	keyPads, err := fileCfg.KeyMap()
	if err != nil {
		return fmt.Errorf("failed to build key map: %w", err)
	}
	if len(keyPads) == 0 {
		keyPads = nil
	}

	ing := input.NewIngestor(profile, input.WithLogger(logger), input.WithQueueSize(practice.queueSize))
	sess := session.New(ing, session.WithLogger(logger), session.WithDefaults(cfg))
	if err := sess.ImportChart(c); err != nil {
		return fmt.Errorf("failed to import chart: %w", err)
	}
	if cfg.LoopStartBeat != 0 || cfg.LoopEndBeat != 0 {
		if err := sess.SetLoop(cfg.LoopStartBeat, cfg.LoopEndBeat); err != nil {
			return fmt.Errorf("invalid loop region: %w", err)
		}
	}

	clock := input.NewMonoClock()
	var sources input.Multi
	var keys *input.KeySource
	if practice.keyboard {
		keys = input.NewKeySource(clock)
		sources = append(sources, keys)
	}
	if practice.device != "" {
		src, err := midi.Open(practice.device, clock, logger)
		if err != nil {
			return fmt.Errorf("failed to open midi input: %w", err)
		}
		defer func() {
			if cerr := src.Close(); cerr != nil {
				logErrf("failed to close midi input: %v\n", cerr)
			}
		}()
		logger.Info("midi input opened", zap.String("port", src.Name()))
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no input: enable --keyboard or pass --device")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := input.Run(ctx, sources, ing, defaultPollInterval); err != nil {
			logger.Error("input loop stopped", zap.Error(err))
		}
	}()

	m := tui.NewModel(tui.Options{
		Session:   sess,
		Clock:     clock,
		Keys:      keys,
		KeyPads:   keyPads,
		Pads:      pads,
		Store:     st,
		ChartPath: args[0],
		Logger:    logger,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List MIDI input devices",
		Args:  cobra.NoArgs,
		RunE:  runDevicesCmd,
	}
}

func runDevicesCmd(cmd *cobra.Command, _ []string) error {
	names, err := midi.ListInputs()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logErrln("No MIDI inputs found. Keyboard practice still works.")
		return nil
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newChartsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charts [dir]",
		Short: "List charts in the library",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runChartsCmd,
	}
	cmd.Flags().StringVar(&chartsQuery, "title", "", "title substring filter")
	cmd.Flags().StringVar(&chartsInstrument, "instrument", "", "only charts using this instrument")
	return cmd
}

func runChartsCmd(cmd *cobra.Command, args []string) error {
	dir := config.DefaultChartDir()
	if len(args) == 1 {
		dir = args[0]
	}
	entries, err := library.Scan(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logErrf("No charts found. Put .toml or .mid files in %s\n", dir)
			return fmt.Errorf("chart directory does not exist")
		}
		return fmt.Errorf("failed to scan charts: %w", err)
	}
	for _, e := range entries {
		if e.Err != nil {
			logErrf("skipping %s: %v\n", e.Path, e.Err)
		}
	}
	filters := []library.FilterFunc{library.Valid, library.TitleContains(chartsQuery)}
	if chartsInstrument != "" {
		inst, err := model.ParseInstrument(chartsInstrument)
		if err != nil {
			return fmt.Errorf("invalid --instrument: %w", err)
		}
		filters = append(filters, library.Uses(inst))
	}
	entries = library.Filter(entries, filters...)
	if len(entries) == 0 {
		logErrln("No matching charts.")
		return nil
	}
	return writeCharts(cmd.OutOrStdout(), entries)
}

func writeCharts(w io.Writer, entries []library.Entry) error {
	width := runewidth.StringWidth("Title")
	for _, e := range entries {
		width = max(width, runewidth.StringWidth(e.Title))
	}
	if _, err := fmt.Fprintf(w, "%s  %4s  %5s  %5s  %s\n", runewidth.FillRight("Title", width), "Bars", "Notes", "BPM", "Path"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s  %4d  %5d  %5.0f  %s\n", runewidth.FillRight(e.Title, width), e.Bars, e.Notes, e.BPM, e.Path); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <chart>",
		Short: "Validate a chart and print its layout",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspectCmd,
	}
	cmd.Flags().BoolVar(&inspectTimeline, "timeline", false, "print every expectation")
	return cmd
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	c, err := loadChart(args[0])
	if err != nil {
		return err
	}
	tm, err := c.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate chart: %w", err)
	}
	tl := timeline.Build(c.Events, tm, c.BeatsPerBar)
	return writeInspect(cmd.OutOrStdout(), c, tm, tl, inspectTimeline)
}

func writeInspect(w io.Writer, c *chart.Chart, tm *tempo.Map, tl []timeline.Expectation, full bool) error {
	counts := make(map[model.Instrument]int)
	for _, e := range tl {
		counts[e.Instrument]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", c.Title)
	fmt.Fprintf(&b, "Meter: %d beats per bar, %d measures, %g beats\n", c.BeatsPerBar, timeline.Measures(tl), c.LengthBeats())
	fmt.Fprintf(&b, "Notes: %d (%d scored)\n", len(tl), timeline.Scored(tl))
	for _, seg := range tm.Segments() {
		fmt.Fprintf(&b, "Tempo: %.1f BPM from beat %g\n", seg.BPM(), seg.StartBeat)
	}
	for _, inst := range c.Instruments() {
		fmt.Fprintf(&b, "  %s %d\n", runewidth.FillRight(inst.String(), 13), counts[inst])
	}
	if full {
		for _, e := range tl {
			ghost := ""
			if e.IsGhost {
				ghost = " ghost"
			}
			fmt.Fprintf(&b, "%8.3f  %9.1f ms  bar %-3d %s %d%s\n", e.Beat, e.TimeMs, e.MeasureIndex+1, runewidth.FillRight(e.Instrument.String(), 13), e.VelocityHint, ghost)
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <chart> <script>",
		Short: "Grade a scripted hit stream against a chart",
		Args:  cobra.ExactArgs(2),
		RunE:  runReplayCmd,
	}
	addSessionFlags(cmd)
	cmd.Flags().BoolVar(&replaySave, "save", false, "store the result in the history db")
	return cmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg := sessionConfig(cmd, fileCfg)
	c, err := loadChart(args[0])
	if err != nil {
		return err
	}
	script, err := replay.LoadScript(args[1])
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	_, pads, err := inputProfile(fileCfg)
	if err != nil {
		return err
	}
	res, err := replay.Run(c, script, replay.Options{Config: cfg, Pads: pads})
	if err != nil {
		return fmt.Errorf("failed to replay: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderResult(out, res.ChartTitle, res.Summary, stats.PassAccuracy(res.Judgments), 0); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !replaySave {
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	rec := model.SessionRecord{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		ChartTitle: res.ChartTitle,
		ChartPath:  args[0],
		LoopCount:  res.Config.LoopCount,
		TempoScale: res.Config.TempoScale,
		Degraded:   res.Degraded,
		Summary:    res.Summary,
	}
	if _, err := st.InsertSession(context.Background(), rec, stats.Aggregates(res.Judgments), res.Judgments); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logErrf("Saved run %s\n", res.RunID)
	return nil
}

func newDrillCmd() *cobra.Command {
	opts := generator.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Generate a practice drill chart",
		Args:  cobra.NoArgs,
		RunE:  runDrillCmd,
	}
	cmd.Flags().StringVar(&drillTitle, "title", opts.Title, "chart title")
	cmd.Flags().IntVar(&drillBars, "bars", opts.Bars, "number of bars")
	cmd.Flags().Float64Var(&drillBPM, "bpm", opts.BPM, "tempo in BPM")
	cmd.Flags().Float64Var(&drillGhostPct, "ghost", opts.GhostPct, "ghost note probability for off-beat snares (0-1)")
	cmd.Flags().Int64Var(&drillSeed, "seed", 0, "random seed (0: time based)")
	cmd.Flags().StringVarP(&drillOut, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&drillFocus, "focus-weak", false, "bias the drill toward weak instruments")
	cmd.Flags().IntVar(&drillWeakTop, "weak-top", defaultWeakTop, "number of weak instruments to focus on")
	cmd.Flags().IntVar(&drillWeakWin, "weak-window", defaultWeakWindow, "number of recent sessions to compute weak instruments")
	cmd.Flags().Float64Var(&drillFactor, "weak-factor", defaultWeakFactor, "weight factor for weak instruments")
	return cmd
}

func runDrillCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "weak-top", &drillWeakTop, fileCfg.Practice.WeakTop)
	applyIntConfig(cmd, "weak-window", &drillWeakWin, fileCfg.Practice.WeakWindow)
	if drillWeakTop < 0 || drillWeakWin < 0 || drillFactor < 0 {
		return fmt.Errorf("--weak-top, --weak-window and --weak-factor must be >= 0")
	}

	opts := generator.DefaultOptions()
	opts.Title = drillTitle
	opts.Bars = drillBars
	opts.BPM = drillBPM
	opts.GhostPct = drillGhostPct

	var weak []model.Instrument
	if drillFocus {
		st, err := openStore()
		if err != nil {
			return err
		}
		aggs, err := st.GetWeakInstruments(context.Background(), drillWeakWin)
		closeStore(st)
		if err != nil {
			logErrf("failed to load weak instruments: %v\n", err)
		}
		weak = stats.SelectWeakInstruments(aggs, drillWeakTop)
		if len(weak) == 0 {
			logErrln("no stats available for weak-instrument focus yet; using normal generator")
		}
	}

	gen := generator.New()
	if drillSeed != 0 {
		gen = generator.NewSeeded(drillSeed)
	}
	c, err := gen.GenerateWeighted(opts, weak, drillFactor)
	if err != nil {
		return fmt.Errorf("failed to generate drill: %w", err)
	}

	if drillOut == "" {
		return chart.Encode(cmd.OutOrStdout(), c)
	}
	if err := os.MkdirAll(filepath.Dir(drillOut), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(drillOut)
	if err != nil {
		return fmt.Errorf("failed to create drill file: %w", err)
	}
	if err := chart.Encode(file, c); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write drill: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write drill: %w", err)
	}
	logErrf("Wrote %s\n", drillOut)
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show practice history",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsChart, "chart", "", "chart title filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().StringVar(&statsInstruments, "instrument", "", "instruments for per-instrument curves (comma separated)")
	cmd.Flags().BoolVar(&statsText, "text", false, "print plain text instead of the TUI")
	cmd.Flags().StringVar(&statsRun, "run", "", "print the judgments of one stored run")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	insts, err := statsui.ParseInstruments(statsInstruments)
	if err != nil {
		return fmt.Errorf("invalid --instrument value: %w", err)
	}
	cfg := model.StatsConfig{
		Chart:       statsChart,
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if statsRun != "" {
		return writeRunText(cmd.OutOrStdout(), st, statsRun)
	}
	if statsText {
		return writeStatsText(cmd.OutOrStdout(), st, cfg, insts)
	}
	program := tea.NewProgram(statsui.NewModel(st, cfg, insts), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func writeRunText(w io.Writer, st *store.Store, runID string) error {
	js, err := st.ListJudgments(context.Background(), runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if len(js) == 0 {
		return fmt.Errorf("run %q not found", runID)
	}
	if err := stats.RenderResult(w, "run "+runID, stats.Summarize(js), stats.PassAccuracy(js), 0); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderJudgments(w, js); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func writeStatsText(w io.Writer, st *store.Store, cfg model.StatsConfig, insts []model.Instrument) error {
	report, err := stats.BuildReport(context.Background(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if err := stats.RenderSummary(w, report.Sessions); err != nil {
		return err
	}
	if len(report.Sessions) == 0 {
		return nil
	}
	if err := stats.RenderInstrumentTable(w, report.InstAggsWindow); err != nil {
		return err
	}
	if err := stats.RenderCurves(w, report.Sessions, cfg.CurveWindow); err != nil {
		return err
	}
	if len(insts) == 0 {
		insts = stats.TopInstrumentsByVolume(report.InstAggsAll, 4)
	}
	return stats.RenderInstrumentCurves(w, report.Sessions, report.PerSession, insts, cfg.CurveWindow, 0, 8, false)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	w := session.DefaultWindows
	return fmt.Sprintf(`# tuidrum configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# loops = %d                   # Passes per test run (0 = free play)
# tempo-scale = %.2f           # Tempo multiplier
# countdown-bars = %d          # Count-in bars
# countdown-every-loop = false # Count in before every pass
# match-pct = %.2f             # Match window as a share of a beat
# match-cap-ms = %.0f          # Match window cap
# on-time-pct = %.2f           # On-time window as a share of a beat
# on-time-cap-ms = %.0f        # On-time window cap
# latency-ms = 0               # Input latency offset
# weak-top = %d                # Weak instruments a drill focuses on
# weak-window = %d             # Recent sessions used to find weak instruments

[input]
# device = "TD-17"             # MIDI input name pattern
# keyboard = true              # Accept keyboard pads
# queue-size = %d              # Hit queue capacity
# hihat-cc = %d                # Hi-hat pedal controller
# hihat-split = false          # Resolve open/closed hi-hat from the pedal
# hihat-threshold = 64         # Pedal value at or above which the hi-hat is closed

[pads]
# 36 = "kick"                  # MIDI note = instrument

[keys]
# f = "kick"                   # Keyboard key = instrument
`,
		defaultLoops,
		defaultTempoScale,
		defaultCountdownBars,
		w.MatchPct,
		w.MatchCapMs,
		w.OnTimePct,
		w.OnTimeCapMs,
		defaultWeakTop,
		defaultWeakWindow,
		input.DefaultQueueSize,
		input.DefaultHiHatController,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
