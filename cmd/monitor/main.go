package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/config"
	"github.com/eddiefleurent/wheelhouse/internal/dashboard"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
	"github.com/eddiefleurent/wheelhouse/internal/roll"
	"github.com/eddiefleurent/wheelhouse/internal/sim"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
)

// Monitor ties the evaluation pipeline to the schedule, storage and the
// status API.
type Monitor struct {
	config      *config.Config
	provider    provider.Provider
	finder      *roll.Finder
	storage     storage.Interface
	optionCache *quote.Cache
	stockCache  *quote.Cache
	logger      *log.Logger
	stop        chan struct{}
}

func main() {
	var configPath string
	var once bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single evaluation cycle and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create logger
	logger := log.New(os.Stdout, "[MONITOR] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("Starting roll monitor in %s mode", cfg.Environment.Mode)
	if !cfg.IsPaperTrading() {
		logger.Println("Live data mode; evaluation is read-only, no orders are placed")
	}

	mon, err := newMonitor(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize monitor: %v", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping monitor...")
		close(mon.stop)
		cancel()
	}()

	if once {
		mon.runCycle(ctx)
		logger.Println("Single cycle complete")
		return
	}

	if err := mon.Run(ctx); err != nil {
		logger.Fatalf("Monitor error: %v", err)
	}

	logger.Println("Monitor stopped successfully")
}

func newMonitor(cfg *config.Config, logger *log.Logger) (*Monitor, error) {
	src, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	// Circuit breaker sits between the engine and the data source so a flaky
	// session fails fast instead of stalling every position in the batch.
	prov := provider.NewCircuitBreakerProvider(src)

	optionCache := quote.NewCache(cfg.GetOptionTTL())
	stockCache := quote.NewCache(cfg.GetStockTTL())

	fetcher := quote.NewFetcher(prov, optionCache, stockCache, quote.FetcherConfig{
		Venues:       cfg.Provider.Venues,
		QuoteTimeout: cfg.GetQuoteTimeout(),
	}, logger)

	expiries := roll.NewExpirySelector(prov, roll.ExpiryConfig{
		RollForwardDays: cfg.Roll.RollForwardDays,
		WindowMin:       cfg.Roll.DTEWindow[0],
		WindowMax:       cfg.Roll.DTEWindow[1],
		Timeout:         cfg.GetExpiryTimeout(),
		Venues:          cfg.Provider.Venues,
	}, logger)

	sp := cfg.Roll.Sampler
	sampler := roll.NewSampler(prov, fetcher, roll.SamplerConfig{
		MaxUniverse:        sp.MaxUniverse,
		ClampPct:           sp.ClampPct,
		LowDeltaCutoffCall: sp.LowDeltaCutoff,
		LowDeltaCutoffPut:  sp.LowDeltaCutoffPut,
		BandCallPct:        [2]float64{sp.BandCallPct[0], sp.BandCallPct[1]},
		BandPutPct:         [2]float64{sp.BandPutPct[0], sp.BandPutPct[1]},
		BandDollarBelow:    sp.BandDollar[0],
		BandDollarAbove:    sp.BandDollar[1],
		SampleSize:         sp.SampleSize,
		GoodMatches:        sp.GoodMatches,
		DeltaTolerance:     sp.DeltaTolerance,
		MaxReturned:        sp.MaxReturned,
		VenueTimeout:       cfg.GetSamplerVenueTimeout(),
		OverallTimeout:     cfg.GetSamplerOverallTimeout(),
		Parallel:           sp.Parallel,
		ParallelLimit:      sp.ParallelLimit,
		Venues:             cfg.Provider.Venues,
	}, logger)

	finder := roll.NewFinder(fetcher, expiries, sampler, roll.FinderConfig{
		TargetDeltaCall: cfg.Roll.TargetDeltaCall,
		TargetDeltaPut:  cfg.Roll.TargetDeltaPut,
		DTEThreshold:    cfg.Roll.DTEThreshold,
		ExpiringDTEMax:  cfg.Roll.ExpiringDTEMax,
	}, logger)

	store, err := storage.NewStorage(cfg.Storage.Path, cfg.Storage.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return &Monitor{
		config:      cfg,
		provider:    prov,
		finder:      finder,
		storage:     store,
		optionCache: optionCache,
		stockCache:  stockCache,
		logger:      logger,
		stop:        make(chan struct{}),
	}, nil
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case "sim":
		seeds := make([]sim.SymbolSeed, 0, len(cfg.Provider.Symbols))
		for _, s := range cfg.Provider.Symbols {
			seeds = append(seeds, sim.SymbolSeed{
				Symbol:         s.Symbol,
				Spot:           s.Spot,
				IV:             s.IV,
				StrikeInterval: s.StrikeInterval,
			})
		}
		return sim.New(sim.Config{Symbols: seeds, Jitter: true}), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", cfg.Provider.Kind)
	}
}

// Run schedules evaluation cycles and cache sweeps until shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	var dash *dashboard.Server
	if m.config.Dashboard.Enabled {
		dash = m.startDashboard()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := dash.Shutdown(shutdownCtx); err != nil {
				m.logger.Printf("Dashboard shutdown error: %v", err)
			}
		}()
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", m.config.GetCheckInterval()), func() {
		m.runCycle(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling evaluation cycle: %w", err)
	}
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", m.config.GetSweepInterval()), func() {
		swept := m.optionCache.SweepExpired() + m.stockCache.SweepExpired()
		if swept > 0 {
			m.logger.Printf("Swept %d expired cache entries", swept)
		}
	}); err != nil {
		return fmt.Errorf("scheduling cache sweep: %w", err)
	}

	// Run immediately on start
	m.runCycle(ctx)

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case <-ctx.Done():
	case <-m.stop:
	}
	return nil
}

func (m *Monitor) startDashboard() *dashboard.Server {
	dashLogger := logrus.New()
	dash := dashboard.NewServer(dashboard.Config{
		Port:      m.config.Dashboard.Port,
		AuthToken: m.config.Dashboard.AuthToken,
	}, m.storage, func() dashboard.CacheStats {
		return dashboard.CacheStats{
			Options: m.optionCache.Stats(),
			Stocks:  m.stockCache.Stats(),
		}
	}, dashLogger)

	go func() {
		if err := dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("Dashboard server error: %v", err)
		}
	}()
	return dash
}

// runCycle evaluates every eligible position once and records the run.
func (m *Monitor) runCycle(ctx context.Context) {
	now := time.Now()
	if !m.config.IsWithinTradingHours(now) {
		m.logger.Printf("Outside trading hours (%s - %s), skipping cycle",
			m.config.Schedule.TradingStart, m.config.Schedule.TradingEnd)
		return
	}

	positions, err := m.provider.ListPositions(ctx)
	if err != nil {
		m.logger.Printf("Failed to list positions: %v", err)
		return
	}

	run := storage.NewRun()
	evaluated := 0
	for i := range positions {
		pos := &positions[i]
		if !m.rightEnabled(pos.Right) {
			continue
		}
		evaluated++

		ev := m.finder.Evaluate(ctx, pos)
		run.Record(ev)
		m.logEvaluation(pos, ev)

		if ctx.Err() != nil {
			break
		}
	}
	run.Finish()

	if err := m.storage.RecordRun(run); err != nil {
		m.logger.Printf("Failed to record run %s: %v", run.RunID, err)
	}

	m.logger.Printf("Cycle %s complete: %d evaluated, %d found, %d not eligible, %d expiring, %d missing data, %d no expiry, %d no candidates, %d errors",
		run.RunID, evaluated,
		run.Counts[models.OutcomeFound],
		run.Counts[models.OutcomeNotEligible],
		run.Counts[models.OutcomeSkipExpiring],
		run.Counts[models.OutcomeMissingData],
		run.Counts[models.OutcomeNoExpiry],
		run.Counts[models.OutcomeNoCandidates],
		run.Counts[models.OutcomeProviderError])
}

func (m *Monitor) rightEnabled(right models.Right) bool {
	for _, r := range m.config.Roll.Rights {
		if string(right) == r {
			return true
		}
	}
	return false
}

func (m *Monitor) logEvaluation(pos *models.Position, ev models.Evaluation) {
	label := fmt.Sprintf("%s $%.2f%s %s", pos.Symbol, pos.Strike, pos.Right, pos.Expiry.Format("2006-01-02"))
	switch ev.Outcome {
	case models.OutcomeFound:
		best := ev.Result.Candidates[0]
		m.logger.Printf("%s: %d candidate(s), best %s net $%.2f (%.1f%% annualized)",
			label, len(ev.Result.Candidates), best.Label, best.NetCredit, best.AnnualizedROI)
	default:
		m.logger.Printf("%s: %s (%s)", label, ev.Outcome, ev.Reason)
	}
}
