package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/signalsfoundry/satnet-rfp/core"
	"github.com/signalsfoundry/satnet-rfp/internal/logging"
	"github.com/signalsfoundry/satnet-rfp/internal/observability"
	"github.com/signalsfoundry/satnet-rfp/internal/quagga"
	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
	"github.com/signalsfoundry/satnet-rfp/internal/sched"
	"github.com/signalsfoundry/satnet-rfp/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a JSON scenario; empty runs the built-in two-satellite demo")
	duration := flag.Duration("duration", 0, "override the scenario's simulation duration")
	tick := flag.Duration("tick", 0, "override the scenario's tick interval")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	metricsListen := flag.String("metrics-listen", "", "address for the /metrics endpoint (empty disables it)")
	predictHorizon := flag.Duration("predict-horizon", 0, "how far ahead to scan orbital geometry for link outages (0 = scenario duration)")
	predictStep := flag.Duration("predict-step", time.Second, "sampling step for the visibility predictor")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewRFPCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsListen, mux); err != nil {
				log.Warn(ctx, "metrics listener stopped", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics endpoint up", logging.String("addr", *metricsListen))
	}

	scenario, err := loadOrDefaultScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "scenario load failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *duration > 0 {
		scenario.DurationSeconds = duration.Seconds()
	}
	if *tick > 0 {
		scenario.TickMilliseconds = int(tick.Milliseconds())
	}

	topo, err := scenario.BuildTopology()
	if err != nil {
		log.Error(ctx, "topology build failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "scenario loaded",
		logging.String("name", scenario.Name),
		logging.Int("nodes", len(topo.Nodes())),
		logging.Int("links", len(topo.Links())),
		logging.Any("epoch", scenario.StartTime()),
	)

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(scenario.StartTime(), scenario.Tick(), mode)
	scheduler := sched.NewEventScheduler(clock)

	var sink rfp.RoutingSink
	quaggaSink := quagga.NewSink(nil, log)
	if quaggaSink.Available() {
		sink = quaggaSink
	} else {
		sink = rfp.NewSimulatedSink(log)
	}

	gate := rfp.NewLinkGate(sink, topo, log, collector)
	buffer := rfp.NewUpdateBuffer(sink, topo, log, collector)
	recorder := rfp.NewRecorder()
	controller := rfp.NewController(
		rfp.Config{Epoch: scenario.StartTime()},
		scheduler, gate, buffer, recorder, topo, log, collector,
	)

	if err := scenario.RegisterScriptedEvents(topo, controller); err != nil {
		log.Error(ctx, "scripted event registration failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	predictor := core.NewVisibilityPredictor(topo, log)
	horizon := *predictHorizon
	if horizon <= 0 {
		horizon = scenario.Duration()
	}
	predicted := predictor.RegisterPredictions(controller, scenario.StartTime(), horizon, *predictStep)
	log.Info(ctx, "predictions registered",
		logging.Int("from_geometry", predicted),
		logging.Int("scripted", len(scenario.PredictedEvents)),
	)

	engine := core.NewEngine(topo, predictor, controller, scheduler, clock, log)

	log.Info(ctx, "simulation starting",
		logging.Any("duration", scenario.Duration()),
		logging.Any("tick", scenario.Tick()),
		logging.Bool("accelerated", *accelerated),
	)
	engine.Run(scenario.Duration())

	fmt.Println(controller.FinalReport().String())
}

// loadOrDefaultScenario loads the given file, or returns a small built-in
// demo: two satellites with one inter-satellite link and a scripted failure
// 20 seconds in.
func loadOrDefaultScenario(path string) (*core.Scenario, error) {
	if path != "" {
		return core.LoadScenario(path)
	}
	s := &core.Scenario{
		Name:             "builtin-demo",
		DurationSeconds:  60,
		TickMilliseconds: 100,
		Nodes: []core.ScenarioNode{
			{ID: "sat-0", Position: &core.Vec3{X: 7000, Y: 0, Z: 0}},
			{ID: "sat-1", Position: &core.Vec3{X: 7000, Y: 500, Z: 0}},
			{ID: "gs-0", Position: &core.Vec3{X: 6371, Y: 0, Z: 0}},
		},
		Links: []core.ScenarioLink{
			{ID: "isl-1", NodeA: "sat-0", NodeB: "sat-1", MaxRangeKm: 3000},
		},
		PredictedEvents: []core.ScenarioEvent{
			{LinkID: "isl-1", T0OffsetSeconds: 20},
		},
	}
	return s, s.Validate()
}
