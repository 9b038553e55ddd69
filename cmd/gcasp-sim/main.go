package main

// gcasp-sim runs seeded replications of a flow-level simulation in which
// every forwarding decision is made by the GCASP routing engine

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iti/gcasp"
	"github.com/iti/gcasp/flowsim"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// replication is one independent run with its own network, engine and streams
type replication struct {
	name  string
	seed  int
	eng   *gcasp.Engine
	sim   *flowsim.Simulator
	trace *flowsim.TraceManager
	stats flowsim.Stats
}

func main() {
	runFile := flag.String("run", "run.yaml", "Run description (.yaml, .json or .toml)")
	seed := flag.Int("seed", -1, "Seed of the first replication, overriding the run description when not negative")
	replications := flag.Int("replications", 0, "Number of replications, overriding the run description when positive")
	metricsFile := flag.String("metrics-file", "", "File to write Prometheus metrics to at the end of the run")
	flag.Parse()

	rd, err := gcasp.ReadRunDesc(*runFile, nil)
	if err != nil {
		log.Fatalf("Failed to load run description %s: %v", *runFile, err)
	}
	if *seed >= 0 {
		rd.Seed = *seed
	}
	if *replications > 0 {
		rd.Replications = *replications
	}

	configureLogging(rd)

	// a relative topology file is found next to the run description
	topoFile := rd.TopoFile
	if !filepath.IsAbs(topoFile) {
		topoFile = filepath.Join(filepath.Dir(*runFile), topoFile)
	}
	if ok, ferr := gcasp.CheckReadableFiles([]string{topoFile}); !ok {
		log.Fatalf("Topology file problem: %v", ferr)
	}
	td, err := gcasp.ReadTopoDesc(topoFile, gcasp.UseYAML(topoFile), []byte{})
	if err != nil {
		log.Fatalf("Failed to load topology %s: %v", topoFile, err)
	}
	log.Infof("Topology %s loaded: %d nodes, %d links", td.Name, len(td.Nodes), len(td.Links))

	reg := prometheus.NewRegistry()
	engCollector, err := gcasp.NewEngineCollector(reg)
	if err != nil {
		log.Fatalf("Failed to register engine metrics: %v", err)
	}
	runCollector, err := flowsim.NewRunCollector(reg)
	if err != nil {
		log.Fatalf("Failed to register run metrics: %v", err)
	}

	// random streams are handed out in creation order, so every replication
	// is built here, in order, before any of them runs
	reps := make([]*replication, 0, rd.Replications)
	cfg := flowsim.ConfigFromRunDesc(rd)
	for idx := 0; idx < rd.Replications; idx++ {
		rep := &replication{name: fmt.Sprintf("%s-rep%d", td.Name, idx), seed: rd.Seed + idx}

		net, nerr := flowsim.CreateNetwork(td)
		if nerr != nil {
			log.Fatalf("Failed to build network for %s: %v", rep.name, nerr)
		}
		rep.eng = gcasp.NewEngine(net, flowsim.SeededStream(rep.name+"-engine", rep.seed), gcasp.WithCollector(engCollector))
		rep.trace = flowsim.CreateTraceManager(rep.name, len(rd.TraceFile) > 0)
		rep.sim, err = flowsim.NewSimulator(rep.name, net, rep.eng, cfg, rep.seed,
			flowsim.WithTrace(rep.trace), flowsim.WithRunCollector(runCollector))
		if err != nil {
			log.Fatalf("Failed to build simulator for %s: %v", rep.name, err)
		}
		reps = append(reps, rep)
	}

	// the pool overlaps logging and stats of finished replications with
	// running ones; the event loops themselves take turns inside Run
	pool, err := ants.NewPool(rd.Workers)
	if err != nil {
		log.Fatalf("Failed to create replication pool: %v", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, rep := range reps {
		wg.Add(1)
		if serr := pool.Submit(func() {
			defer wg.Done()
			log.Infof("Replication %s starting with seed %d", rep.name, rep.seed)
			rep.stats = rep.sim.Run()
		}); serr != nil {
			wg.Done()
			log.Errorf("Failed to submit replication %s: %v", rep.name, serr)
		}
	}
	wg.Wait()

	for _, rep := range reps {
		reportStats(rep)
		if len(rd.TraceFile) > 0 {
			traceFile := repFileName(rd.TraceFile, rep.name, len(reps) > 1)
			if terr := rep.trace.WriteToFile(traceFile); terr != nil {
				log.Errorf("Failed to write trace %s: %v", traceFile, terr)
			}
		}
	}

	if len(*metricsFile) > 0 {
		if merr := prometheus.WriteToTextfile(*metricsFile, engCollector.Gatherer()); merr != nil {
			log.Errorf("Failed to write metrics to %s: %v", *metricsFile, merr)
		}
	}
}

// configureLogging sets the level from the run description, and sends
// output to a rotating log file as well as stdout when one is named
func configureLogging(rd *gcasp.RunDesc) {
	level, err := log.ParseLevel(rd.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", rd.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if len(rd.LogFile) == 0 {
		return
	}
	if dir := filepath.Dir(rd.LogFile); len(dir) > 0 {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create log directory %s: %v", dir, err)
		}
	}
	fileLogger := &lumberjack.Logger{
		Filename:   rd.LogFile,
		MaxSize:    100, // MB
		MaxBackups: 7,
		MaxAge:     30, // Days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	log.Infof("Logging initialized: file=%s, stdout=enabled", rd.LogFile)
}

func reportStats(rep *replication) {
	stats := rep.stats
	reasons := make([]string, 0, len(stats.DropReasons))
	for reason, count := range stats.DropReasons {
		reasons = append(reasons, fmt.Sprintf("%s=%d", reason, count))
	}
	sort.Strings(reasons)
	log.WithFields(log.Fields{
		"replication": rep.name,
		"seed":        rep.seed,
		"generated":   stats.Generated,
		"successful":  stats.Successful,
		"dropped":     stats.Dropped,
		"inflight":    stats.InFlight,
		"tracked":     rep.eng.NumTracked(),
		"mean_delay":  stats.MeanDelay(),
		"drops":       strings.Join(reasons, ","),
	}).Info("replication statistics")
}

// repFileName gives each replication its own trace file when there are several
func repFileName(filename, repName string, several bool) string {
	if !several {
		return filename
	}
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "-" + repName + ext
}
