// Command chesscore searches a position, runs the bench suite or counts
// perft nodes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/storage"
	"github.com/hailam/chesscore/internal/tablebase"
)

const (
	defaultNetFile = "chesscore.nnue"

	// remoteTBProbeDepth keeps online tablebase lookups, an HTTP round trip
	// each, away from the leaves.
	remoteTBProbeDepth = 8
)

var (
	fen        = flag.String("fen", board.StartFEN, "position to search")
	moves      = flag.String("moves", "", "space separated moves to play from -fen first")
	depth      = flag.Int("depth", 0, "maximum search depth")
	movetime   = flag.Duration("movetime", 0, "time per move")
	nodes      = flag.Uint64("nodes", 0, "node limit")
	threads    = flag.Int("threads", 1, "search threads")
	multiPV    = flag.Int("multipv", 1, "number of principal variations")
	hash       = flag.Int("hash", 64, "transposition table size in MB")
	weights    = flag.String("weights", "", "network weight file")
	bench      = flag.Int("bench", 0, "run the bench suite to this depth and print the node signature")
	perft      = flag.Int("perft", 0, "count leaf nodes to this depth")
	dbDir      = flag.String("db", "", "database directory (default: platform data dir, \"-\" to disable)")
	tb         = flag.Bool("tb", false, "probe the online tablebase for endgames")
	saveTT     = flag.String("save-tt", "", "store the transposition table under this name after searching")
	loadTT     = flag.String("load-tt", "", "restore the transposition table stored under this name")
	fresh      = flag.Bool("fresh", false, "ignore cached analysis")
	history    = flag.Bool("history", false, "list stored analyses and exit")
	verbose    = flag.Bool("v", false, "debug logging")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	if err := run(log); err != nil {
		pprof.StopCPUProfile()
		log.Fatal().Err(err).Msg("chesscore failed")
	}
}

func run(log zerolog.Logger) error {
	pos, err := board.ParseFEN(*fen)
	if err != nil {
		return fmt.Errorf("parse fen: %w", err)
	}
	for _, s := range strings.Fields(*moves) {
		m, err := pos.ParseUCIMove(s)
		if err != nil {
			return err
		}
		pos.MakeMove(m)
	}

	if *perft > 0 {
		runPerft(pos, *perft)
		return nil
	}

	store, err := openStore(log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if *history {
		return listHistory(store)
	}

	prefs := storage.DefaultPreferences()
	if store != nil {
		if prefs, err = store.LoadPreferences(); err != nil {
			return fmt.Errorf("load preferences: %w", err)
		}
	}
	applyFlags(prefs)
	if store != nil {
		if err := store.SavePreferences(prefs); err != nil {
			log.Warn().Err(err).Msg("could not save preferences")
		}
	}

	net, err := loadNetwork(prefs.WeightsPath, log)
	if err != nil {
		// Searching with random weights is useless; refuse.
		return fmt.Errorf("load network %q: %w", prefs.WeightsPath, err)
	}

	opts := engine.DefaultOptions()
	opts.HashMB = prefs.HashMB
	opts.Threads = prefs.Threads
	opts.MoveOverhead = prefs.MoveOverhead
	opts.MultiPV = *multiPV
	opts.Logger = log
	opts.Network = net
	if *tb {
		prober, err := tablebase.NewCachedLichessProber()
		if err != nil {
			return fmt.Errorf("tablebase cache: %w", err)
		}
		defer prober.Close()
		opts.Prober = prober
		opts.Params.TBProbeDepth = max(opts.Params.TBProbeDepth, remoteTBProbeDepth)
		defer func() {
			log.Debug().Float64("hit_rate", prober.HitRate()).Msg("tablebase cache")
		}()
	}

	eng, err := engine.NewEngine(opts)
	if err != nil {
		return err
	}
	log.Info().
		Int("threads", eng.Threads()).
		Str("hash", humanize.IBytes(eng.TT().SizeBytes())).
		Msg("engine ready")

	if *bench > 0 {
		return runBench(eng, *bench, log)
	}

	if *loadTT != "" && store != nil {
		restoreTT(eng, store, *loadTT, log)
	}

	if store != nil && !*fresh {
		if a, err := store.GetAnalysis(pos.Hash()); err == nil && a.FEN == pos.FEN() && *depth > 0 && a.Depth >= *depth {
			log.Info().Int("depth", a.Depth).Time("at", a.At).Msg("cached analysis")
			fmt.Printf("bestmove %s score %s pv %s\n", a.Move, engine.ScoreString(a.Score), strings.Join(a.PV, " "))
			return nil
		}
	}

	limits := engine.Limits{Depth: *depth, MoveTime: *movetime, Nodes: *nodes}
	if limits.Depth == 0 && limits.MoveTime == 0 && limits.Nodes == 0 {
		limits.MoveTime = 5 * time.Second
	}

	eng.OnInfo = func(info engine.Info) {
		nps := uint64(0)
		if info.Time > 0 {
			nps = uint64(float64(info.Nodes) / info.Time.Seconds())
		}
		log.Info().
			Int("depth", info.Depth).
			Int("seldepth", info.SelDepth).
			Int("multipv", info.MultiPV).
			Str("score", engine.ScoreString(info.Score)).
			Str("nodes", humanize.Comma(int64(info.Nodes))).
			Str("nps", humanize.Comma(int64(nps))).
			Int("hashfull", info.HashFull).
			Uint64("tbhits", info.TBHits).
			Str("pv", formatPV(info.PV)).
			Msg("info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := eng.StartSearch(ctx, pos, limits)
	if err != nil {
		return err
	}
	if len(res.Lines) > 1 {
		for i, l := range res.Lines {
			fmt.Printf("line %d score %s pv %s\n", i+1, engine.ScoreString(l.Score), formatPV(l.PV))
		}
	}
	fmt.Printf("bestmove %s score %s pv %s\n", res.Move, engine.ScoreString(res.Score), formatPV(res.PV))

	if store == nil {
		return nil
	}
	a := storage.Analysis{
		FEN:   pos.FEN(),
		Move:  res.Move.String(),
		PV:    lo.Map(res.PV, func(m board.Move, _ int) string { return m.String() }),
		Score: res.Score,
		Depth: res.Depth,
		Nodes: res.Nodes,
	}
	if _, err := store.PutAnalysis(pos.Hash(), a); err != nil {
		log.Warn().Err(err).Msg("could not store analysis")
	}
	if err := store.RecordSearch(res.Nodes, res.Depth, res.Time); err != nil {
		log.Warn().Err(err).Msg("could not record search")
	}
	if *saveTT != "" {
		snap := eng.TT().Snapshot()
		if err := store.SaveSnapshot(*saveTT, snap.Generation, snap.Words); err != nil {
			log.Warn().Err(err).Msg("could not save transposition table")
		}
	}
	return nil
}

func openStore(log zerolog.Logger) (*storage.Storage, error) {
	switch *dbDir {
	case "-":
		return nil, nil
	case "":
		return storage.OpenDefault(log)
	}
	return storage.Open(storage.Options{Dir: *dbDir, Logger: log})
}

// applyFlags overrides stored preferences with the flags given on the
// command line.
func applyFlags(prefs *storage.Preferences) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hash":
			prefs.HashMB = *hash
		case "threads":
			prefs.Threads = *threads
		case "weights":
			prefs.WeightsPath = *weights
		}
	})
}

// loadNetwork reads the weight file at path, or the default file in the
// data directory when path is empty. A missing default file yields nil.
func loadNetwork(path string, log zerolog.Logger) (*nnue.Network, error) {
	if path == "" {
		dir, err := storage.GetNNUEDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(dir, defaultNetFile)
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	}
	net, err := nnue.LoadNetworkFile(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("network loaded")
	return net, nil
}

func restoreTT(eng *engine.Engine, store *storage.Storage, name string, log zerolog.Logger) {
	gen, words, err := store.LoadSnapshot(name)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Str("name", name).Msg("no stored transposition table")
		return
	}
	if err == nil {
		err = eng.TT().Restore(engine.TTSnapshot{Generation: gen, Words: words})
	}
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("could not restore transposition table")
		return
	}
	log.Info().Str("name", name).Int("hashfull", eng.TT().Hashfull()).Msg("transposition table restored")
}

func runPerft(pos *board.Position, depth int) {
	start := time.Now()
	divide := pos.Divide(depth)
	keys := lo.Keys(divide)
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, m := range keys {
		fmt.Printf("%s: %d\n", m, divide[m])
	}
	total := lo.Sum(lo.Values(divide))
	elapsed := time.Since(start)
	fmt.Printf("\nnodes %s time %s nps %s\n",
		humanize.Comma(int64(total)), elapsed.Round(time.Millisecond),
		humanize.Comma(int64(float64(total)/max(elapsed.Seconds(), 1e-9))))
}

func runBench(eng *engine.Engine, depth int, log zerolog.Logger) error {
	start := time.Now()
	n, err := eng.Bench(depth)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Info().
		Int("depth", depth).
		Str("time", elapsed.Round(time.Millisecond).String()).
		Str("nps", humanize.Comma(int64(float64(n)/max(elapsed.Seconds(), 1e-9)))).
		Msg("bench finished")
	fmt.Printf("%d nodes\n", n)
	return nil
}

func listHistory(store *storage.Storage) error {
	if store == nil {
		return errors.New("history needs a database")
	}
	var rows []storage.Analysis
	if err := store.Analyses(func(_ uint64, a storage.Analysis) bool {
		rows = append(rows, a)
		return true
	}); err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].At.After(rows[j].At) })
	for _, a := range rows {
		fmt.Printf("%s  depth %2d  %-8s %s  (%s)\n",
			a.FEN, a.Depth, engine.ScoreString(a.Score), a.Move, humanize.Time(a.At))
	}
	stats, err := store.LoadStats()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d searches, %s nodes, %s nps\n", stats.Searches,
		humanize.Comma(int64(stats.TotalNodes)), humanize.Comma(int64(stats.NodesPerSecond())))
	return nil
}

func formatPV(pv []board.Move) string {
	return strings.Join(lo.Map(pv, func(m board.Move, _ int) string { return m.String() }), " ")
}
