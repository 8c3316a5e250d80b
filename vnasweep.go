package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/actuator"
	"github.com/hb9tf/vnasweep/api"
	"github.com/hb9tf/vnasweep/config"
	"github.com/hb9tf/vnasweep/export"
	"github.com/hb9tf/vnasweep/filter"
	"github.com/hb9tf/vnasweep/keysight"
	"github.com/hb9tf/vnasweep/rohde"
	"github.com/hb9tf/vnasweep/scpi"
	"github.com/hb9tf/vnasweep/sweep"
	"github.com/hb9tf/vnasweep/vna"

	// Blind import support for the sqlite3 and postgres mirrors.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Flags
var (
	configFile = flag.String("config", "", "Path of the station YAML file. Defaults apply without one.")
	identifier = flag.String("id", "", "unique identifier of this station (overrides the station file, defaults to a random UUID)")
	mode       = flag.String("mode", "sweep", "What to do (one of: sweep, snapshot, serve, configure, trace)")
	addrs      = flag.String("addrs", "", "Comma separated SCPI endpoints (host or host:port) to probe for an analyzer.")

	// Sweep
	states     = flag.String("states", "", "Comma separated list of actuator states to sweep, in order.")
	statesFile = flag.String("statesFile", "", "CSV file whose first row lists the states to sweep.")
	count      = flag.Int("count", 0, "Sweep this many consecutive states from the bottom of the device range.")
	startFreq  = flag.Float64("start", 0, "Lower edge of the persisted frequency window in GHz.")
	endFreq    = flag.Float64("end", 0, "Upper edge of the persisted frequency window in GHz.")
	delay      = flag.Duration("delay", 0, "Settle time after each trigger (overrides the station file).")
	dir        = flag.String("dir", "", "Run folder. Defaults to a timestamped folder below the station's sweep root.")
	profile    = flag.String("profile", "", "Actuator profile limiting the states (e.g. receiver/phase_shifter).")
	bits       = flag.Int("bits", 0, "Limit states to those of an n-bit device.")

	// Configure
	points   = flag.Int("points", 201, "Sweep points for -mode=configure.")
	averages = flag.Int("averages", 0, "Averaging count for -mode=configure. 0 turns averaging off.")

	// Trace
	traceName  = flag.String("traceName", "", "Name of the trace to create with -mode=trace.")
	traceParam = flag.String("traceParam", "S21", "S-parameter of the trace to create.")
	traceUnit  = flag.String("traceUnit", "db", "Unit of the trace to create (one of: db, deg).")
)

func loadConfig() *config.Config {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			glog.Exitf("unable to load station file %q: %s", *configFile, err)
		}
	}
	if *identifier != "" {
		cfg.Identifier = *identifier
	}
	if *addrs != "" {
		cfg.Instrument.Addrs = strings.Split(*addrs, ",")
	}
	if *profile != "" {
		if _, ok := actuator.Profiles[*profile]; !ok {
			glog.Exitf("%q is not a known profile, pick one of: %s", *profile, strings.Join(config.ProfileNames(), ", "))
		}
		cfg.Actuator.Profile = *profile
	}
	if *bits > 0 {
		cfg.Actuator.Bits = *bits
	}
	if *delay > 0 {
		cfg.Sweep.Delay = *delay
	}
	if *startFreq > 0 || *endFreq > 0 {
		cfg.Sweep.Window = &vna.Window{Start: *startFreq, End: *endFreq}
	}
	return cfg
}

// instruments returns the vendor dialects to probe, in priority order.
func instruments(cfg *config.Config) []vna.Instrument {
	bus := &scpi.TCPBus{
		Addrs:   cfg.Instrument.Addrs,
		Timeout: cfg.Instrument.Timeout,
	}
	var candidates []vna.Instrument
	for _, v := range cfg.Instrument.Vendors {
		switch strings.ToLower(v) {
		case rohde.SourceName:
			candidates = append(candidates, &rohde.VNA{Bus: bus})
		case keysight.SourceName:
			candidates = append(candidates, &keysight.VNA{Bus: bus})
		}
	}
	return candidates
}

// mirrors sets up the exporters every row is copied to besides its trace
// file. It returns nil if none are configured.
func mirrors(cfg *config.Config) export.Exporter {
	var multi export.Multi
	if c := cfg.Export.SQLite; c != nil {
		db, err := sql.Open(export.DriverSQLite, c.File)
		if err != nil {
			glog.Exitf("unable to open sqlite DB %q: %s", c.File, err)
		}
		multi = append(multi, &export.SQL{DB: db, Driver: export.DriverSQLite})
	}
	if c := cfg.Export.Postgres; c != nil {
		db, err := sql.Open(export.DriverPostgres, c.ConnString)
		if err != nil {
			glog.Exitf("unable to open postgres DB: %s", err)
		}
		multi = append(multi, &export.SQL{DB: db, Driver: export.DriverPostgres})
	}
	if c := cfg.Export.MySQL; c != nil {
		var pass []byte
		if c.PasswordFile != "" {
			var err error
			if pass, err = os.ReadFile(c.PasswordFile); err != nil {
				glog.Exitf("unable to read MySQL password file %q: %s\n", c.PasswordFile, err)
			}
		}
		exp, err := export.NewMySQL(export.MySQLConfig(c.User, strings.TrimSpace(string(pass)), c.Addr, c.DBName))
		if err != nil {
			glog.Exit(err)
		}
		multi = append(multi, exp)
	}
	if c := cfg.Export.Spectre; c != nil {
		multi = append(multi, &export.SpectreServer{
			Server:         c.Server,
			SendRowsAmount: c.Rows,
		})
	}
	if len(multi) == 0 {
		return nil
	}
	if len(cfg.Export.Traces) > 0 {
		return &filter.Exporter{
			Exporter: multi,
			Filters:  []filter.Filterer{&filter.FilterTrace{IDs: cfg.Export.Traces}},
		}
	}
	return multi
}

// jobStates picks the states from -states, -statesFile or -count.
func jobStates(r actuator.Range) []int {
	var list []int
	var err error
	switch {
	case *states != "":
		list, err = parseStates(*states)
	case *statesFile != "":
		list, err = readStatesFile(*statesFile)
	case *count > 0:
		list, err = r.Seq(*count)
	default:
		glog.Exit("no states given, use one of -states, -statesFile or -count")
	}
	if err != nil {
		glog.Exit(err)
	}
	if err := r.Check(list); err != nil {
		glog.Exit(err)
	}
	return list
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	cfg := loadConfig()

	// Instrument setup
	analyzer := &vna.Analyzer{}
	if err := analyzer.Connect(ctx, instruments(cfg)...); err != nil {
		glog.Exitf("unable to connect to an analyzer at %s: %s", strings.Join(cfg.Instrument.Addrs, ", "), err)
	}
	defer analyzer.Close()

	switch strings.ToLower(*mode) {
	case "configure":
		s := vna.Settings{StartGHz: *startFreq, StopGHz: *endFreq, Points: *points, Averages: *averages}
		if err := analyzer.Configure(ctx, s); err != nil {
			glog.Exitf("unable to configure %s analyzer: %s", analyzer.Name(), err)
		}
		glog.Infof("configured %s analyzer: %+v", analyzer.Name(), s)
		return
	case "trace":
		if *traceName == "" {
			glog.Exit("-traceName is required with -mode=trace")
		}
		if err := analyzer.CreateTrace(ctx, *traceName, *traceParam, vna.Unit(strings.ToLower(*traceUnit))); err != nil {
			glog.Exitf("unable to create trace %q: %s", *traceName, err)
		}
		return
	case "snapshot":
		out := *dir
		if out == "" {
			out = cfg.Sweep.Root
		}
		files, err := sweep.Snapshot(ctx, analyzer, cfg.Sweep.Window, out)
		if err != nil {
			glog.Exitf("snapshot failed: %s", err)
		}
		glog.Infof("wrote %d snapshot files to %s: %s", len(files), out, strings.Join(files, ", "))
		return
	case "sweep", "serve":
	default:
		glog.Exitf("%q is not a supported mode, pick one of: sweep, snapshot, serve, configure, trace", *mode)
	}

	if code := measure(ctx, cfg, analyzer); code != 0 {
		analyzer.Close()
		glog.Flush()
		os.Exit(code)
	}
}

// measure runs a sweep, or serves the control API, and returns the exit
// code.
func measure(ctx context.Context, cfg *config.Config, analyzer *vna.Analyzer) int {
	serve := strings.ToLower(*mode) == "serve"
	var job sweep.Job
	if !serve {
		if cfg.Sweep.Window == nil {
			glog.Error("no frequency window given, set -start and -end")
			return 1
		}
		job = sweep.Job{
			States: jobStates(cfg.Range()),
			Window: *cfg.Sweep.Window,
			Delay:  sweep.Duration(cfg.Sweep.Delay),
			Dir:    *dir,
		}
	}

	// Actuator setup
	fpga := &actuator.FPGA{
		Keyword:    cfg.Actuator.Keyword,
		BaudRate:   cfg.Actuator.BaudRate,
		Timeout:    cfg.Actuator.Timeout,
		AckTimeout: cfg.Actuator.AckTimeout,
	}
	if err := fpga.Connect(); err != nil {
		glog.Error(err)
		return 1
	}

	mirror := mirrors(cfg)
	closeMirror := func() {
		if mirror == nil {
			return
		}
		if err := mirror.Close(); err != nil {
			glog.Errorf("closing mirrors: %s", err)
		}
	}

	events := sweep.NewRecorder(cfg.API.Events)
	runner := &sweep.Runner{
		Actuator:     fpga,
		Instrument:   analyzer,
		Observer:     sweep.Fanout(sweep.LogObserver, events.Observe),
		Mirror:       mirror,
		Root:         cfg.Sweep.Root,
		Identifier:   cfg.Identifier,
		PollInterval: cfg.Sweep.PollInterval,
	}

	// Cancel a running sweep on interrupt. When serving, shut down once the
	// sweep ended; a second interrupt exits right away.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		if runner.Cancel() {
			glog.Warning("interrupted, cancelling sweep")
		}
		if serve {
			<-runner.Done()
			closeMirror()
			analyzer.Close()
			glog.Flush()
			os.Exit(0)
		}
		<-sigs
		glog.Flush()
		os.Exit(1)
	}()

	if serve {
		a := &api.API{
			Runner: runner,
			Events: events,
			Range:  cfg.Range(),
			Window: cfg.Sweep.Window,
			Delay:  cfg.Sweep.Delay,
		}
		glog.Infof("serving sweep control API on %s", cfg.API.Listen)
		err := a.Router().Run(cfg.API.Listen)
		glog.Error(err)
		closeMirror()
		return 1
	}

	defer closeMirror()
	if err := runner.Start(ctx, job); err != nil {
		glog.Errorf("unable to start sweep: %s", err)
		return 1
	}
	<-runner.Done()

	st := runner.Status()
	glog.Infof("sweep %s %s after %d of %d states in %s", st.RunID, st.Outcome, st.Step, st.Total, st.Dir)
	if st.Outcome != sweep.Completed.String() {
		return 1
	}
	return 0
}
