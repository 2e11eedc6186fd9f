package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluxforge/corescheduler/adapter"
	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/compute/tasks"
	"github.com/fluxforge/corescheduler/events"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
	"github.com/fluxforge/corescheduler/metrics"
	"github.com/fluxforge/corescheduler/rules/loader"
	"github.com/fluxforge/corescheduler/rules/schema"
	ruleschedule "github.com/fluxforge/corescheduler/rules/scheduler"
	"github.com/fluxforge/corescheduler/scheduler"
)

// ruleBook tracks the currently loaded rule documents alongside the
// RuleScheduler's own schedule entries, since rule-derived tasks need the
// full AnomalySpec (detection composition, enrichment), not just cron/
// cooldown bookkeeping.
type ruleBook struct {
	mu   sync.Mutex
	docs map[string]schema.RuleDocument
}

func newRuleBook() *ruleBook {
	return &ruleBook{docs: make(map[string]schema.RuleDocument)}
}

func (b *ruleBook) replace(result loader.LoadResult) {
	next := make(map[string]schema.RuleDocument, len(result.Loaded))
	for _, d := range result.Loaded {
		if d.Doc.Kind == schema.KindAnomalyRule {
			next[d.Doc.Metadata.ID] = d.Doc
		}
	}
	b.mu.Lock()
	b.docs = next
	b.mu.Unlock()
}

func (b *ruleBook) get(id string) (schema.RuleDocument, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.docs[id]
	return doc, ok
}

func main() {
	rulesDir := os.Getenv("RULES_DIR")
	if rulesDir == "" {
		rulesDir = "./rules.d"
	}

	graphProvider := graph.NewProvider()
	// Ingestion/segment storage lives outside this repository (§1 scope);
	// seed an empty snapshot so tasks have something to read in standalone
	// mode until a real feed is wired in front of this process.
	graphProvider.Swap(graph.NewSnapshot())

	state := knowledge.New()

	publisher := buildPublisher()
	defer publisher.Close()

	history := buildHistory()
	sink := metrics.NewSink(history)

	registry := compute.NewRegistry()
	registerComputeTasks(registry, graphProvider)

	schedConfig := scheduler.DefaultConfig()
	if v := os.Getenv("SCHEDULER_WORKER_CAP"); v != "" {
		fmt.Sscanf(v, "%d", &schedConfig.WorkerCap)
	}
	if v := os.Getenv("SCHEDULER_TICK_MS"); v != "" {
		var ms int
		fmt.Sscanf(v, "%d", &ms)
		if ms > 0 {
			schedConfig.TickInterval = time.Duration(ms) * time.Millisecond
		}
	}
	log.Printf("corescheduler: worker_cap=%d tick=%s", schedConfig.WorkerCap, schedConfig.TickInterval)

	runner := scheduler.NewRunner(schedConfig, registry, graphProvider, state, sink, publisher)

	book := newRuleBook()
	ruleSched := ruleschedule.NewRuleScheduler(buildCooldownStore())
	limiter := adapter.NewEnrichmentLimiter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onLoad := func(result loader.LoadResult) {
		for _, skip := range result.Skipped {
			log.Printf("rules: skipped %s: %s", skip.Path, skip.Reason)
		}
		book.replace(result)
		ruleSched.ApplyLoadResult(result)
		publisher.Publish(events.TopicRulesLoaded, map[string]any{
			"loaded": len(result.Loaded), "skipped": len(result.Skipped), "total_rules": result.TotalRules(),
		})
		log.Printf("rules: loaded %d rule(s), %d skipped", len(result.Loaded), len(result.Skipped))
	}

	if initial, err := loader.LoadDirectory(rulesDir); err != nil {
		log.Printf("rules: initial load of %s failed: %v", rulesDir, err)
	} else {
		onLoad(initial)
	}

	watcher, err := loader.NewWatcher(rulesDir, loader.DefaultDebounce, onLoad)
	if err != nil {
		log.Printf("rules: watcher disabled, could not watch %s: %v", rulesDir, err)
	} else {
		go watcher.Start()
		defer watcher.Close()
	}

	go runRuleDispatchLoop(ctx, registry, ruleSched, book, limiter, publisher, sink)

	go runner.Run(ctx)

	log.Println("corescheduler: running")
	waitForShutdown()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), schedConfig.ShutdownDrain+5*time.Second)
	defer shutdownCancel()
	runner.Shutdown(shutdownCtx)
	log.Println("corescheduler: stopped")
}

func registerComputeTasks(registry *compute.Registry, gp *graph.Provider) {
	pagerank := tasks.NewPageRank(gp, 60*time.Second)
	degree := tasks.NewDegreeCentrality(gp, 60*time.Second)
	community := tasks.NewCommunityDetection(gp, 120*time.Second)
	anomaly := tasks.NewAnomalyDetection(gp, 120*time.Second)
	clustering := tasks.NewClustering(gp, 300*time.Second, 8)
	pattern := tasks.NewPatternMining(gp, 600*time.Second)

	mustRegister(registry, pagerank)
	mustRegister(registry, degree)
	mustRegister(registry, community)
	mustRegister(registry, anomaly, "pagerank", "community_detection")
	mustRegister(registry, clustering, "pagerank", "degree_centrality")
	mustRegister(registry, pattern)
}

func mustRegister(registry *compute.Registry, task compute.Task, deps ...string) {
	if err := registry.Register(task, deps...); err != nil {
		log.Fatalf("corescheduler: failed to register task %s: %v", task.Name(), err)
	}
}

// runRuleDispatchLoop polls the RuleScheduler once per RULES_POLL_INTERVAL
// and, for every due rule, registers a fresh one-shot RuleTask with the
// compute registry at P1 so the normal Scheduler Runner tick picks it up
// and paces it like any other task (§4.10) — rule tasks never get P0
// urgency, so they never bypass LoadLevel throttling.
//
// The default interval is 1 second, not looser: Schedule.Matches truncates
// the polled instant down to its whole second, so a 1s-period ticker checks
// every whole second exactly once regardless of its phase offset from
// process start, guaranteeing a cron activation second is never skipped. A
// longer RULES_POLL_INTERVAL_MS trades that guarantee for less polling.
func runRuleDispatchLoop(ctx context.Context, registry *compute.Registry, ruleSched *ruleschedule.RuleScheduler, book *ruleBook, limiter *adapter.EnrichmentLimiter, pub events.Publisher, sink *metrics.Sink) {
	interval := time.Second
	if v := os.Getenv("RULES_POLL_INTERVAL_MS"); v != "" {
		var ms int
		fmt.Sscanf(v, "%d", &ms)
		if ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, ruleID := range ruleSched.DueNow(now) {
				doc, ok := book.get(ruleID)
				if !ok {
					continue
				}
				spec, err := doc.DecodeAnomalySpec()
				if err != nil {
					log.Printf("rules: %s failed to decode anomaly spec: %v", ruleID, err)
					continue
				}

				task := adapter.NewRuleTask(ruleID, doc.Metadata.Name, spec, compute.P1, adapter.NoopEnricher{}, limiter, pub, sink)
				registry.Unregister(task.Name())
				if err := registry.Register(task); err != nil {
					log.Printf("rules: %s could not be registered for dispatch: %v", ruleID, err)
					continue
				}
				ruleSched.MarkTriggered(ruleID, now)
			}
		}
	}
}

func buildPublisher() events.Publisher {
	switch os.Getenv("EVENTS_BACKEND") {
	case "fanout":
		return events.NewFanoutPublisher(64)
	default:
		return events.NewLogPublisher()
	}
}

func buildHistory() metrics.History {
	if dsn := os.Getenv("HISTORY_POSTGRES_DSN"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h, err := metrics.NewPostgresHistory(ctx, dsn)
		if err != nil {
			log.Printf("metrics: postgres history unavailable, falling back to memory: %v", err)
		} else {
			return h
		}
	}
	return metrics.NewMemoryHistory(0)
}

func buildCooldownStore() ruleschedule.CooldownStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	store, err := ruleschedule.NewRedisCooldownStore(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		log.Printf("rules: redis cooldown store unavailable, falling back to in-memory: %v", err)
		return nil
	}
	return store
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
