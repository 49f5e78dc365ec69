package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/service_layer/infrastructure/config"
	"github.com/R3E-Network/service_layer/infrastructure/eventbus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/metrics"
	"github.com/R3E-Network/service_layer/infrastructure/runtime"
	core "github.com/R3E-Network/service_layer/internal/app/core/service"
	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/internal/app/httpapi"
	auditsvc "github.com/R3E-Network/service_layer/internal/app/services/audit"
	"github.com/R3E-Network/service_layer/internal/app/services/duplicate"
	"github.com/R3E-Network/service_layer/internal/app/services/orchestrator"
	"github.com/R3E-Network/service_layer/internal/app/services/pomatch"
	"github.com/R3E-Network/service_layer/internal/app/services/risk"
	"github.com/R3E-Network/service_layer/internal/app/services/slamanager"
	"github.com/R3E-Network/service_layer/internal/app/services/stageworkers"
	workflowsvc "github.com/R3E-Network/service_layer/internal/app/services/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
	"github.com/R3E-Network/service_layer/internal/app/storage/postgres"
)

// stores bundles the eight persistence interfaces the pipeline needs,
// satisfied either by one *postgres.Store or by the individual in-memory
// implementations.
type stores struct {
	invoices   storage.InvoiceStore
	vendors    storage.VendorStore
	approvals  storage.ApprovalStore
	workflow   storage.WorkflowStore
	sla        storage.SLAStore
	audit      storage.AuditStore
	duplicates storage.DuplicateIndexStore
	pos        storage.POStore
}

func main() {
	addr := flag.String("addr", "", "HTTP listen address for /healthz and /metrics (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New("invoiced", cfg.Logging.Level, cfg.Logging.Format)
	procMetrics := metrics.New("invoiced")
	logger.Info(context.Background(), "starting invoiced", map[string]interface{}{"environment": string(runtime.Env())})

	st, closeStores, err := openStores(resolveDSN(*dsn, cfg), cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	if closeStores != nil {
		defer closeStores()
	}

	eventBus, closeBus := openEventBus(cfg, logger)
	if closeBus != nil {
		defer closeBus()
	}

	machine := workflowsvc.New(st.workflow, logger)
	auditLog := auditsvc.New(st.audit)
	orch := orchestrator.New(st.invoices, machine, auditLog, eventBus, logger, orchestrator.WithMetrics(procMetrics))

	slaCfg := slamanager.DefaultConfig()
	slaCfg.ReviewDeadline = time.Duration(cfg.Policy.SLABreachHours * float64(time.Hour))
	slaCfg.WarningThreshold = cfg.Policy.SLAWarningHours / cfg.Policy.SLABreachHours
	slaMgr := slamanager.New(st.sla, slaCfg, logger)

	detector := duplicate.New(st.duplicates)
	scorer := risk.NewScorer(risk.DefaultScorerConfig())
	matcher := pomatch.New(st.pos, pomatch.ToleranceConfig{
		AmountTolerance: cfg.Policy.POMatchAmountTolerance,
		TaxTolerance:    pomatch.DefaultToleranceConfig().TaxTolerance,
	})
	engine := risk.NewRuleEngine(defaultApprovalRules(cfg))

	validationWorker := stageworkers.NewValidationScoringWorker(st.invoices, st.vendors, detector, scorer, matcher, machine, auditLog, eventBus, logger)
	routingWorker := stageworkers.NewRoutingWorker(st.invoices, st.vendors, st.approvals, scorer, engine, machine, slaMgr, auditLog, eventBus, logger)
	approvalWorker := stageworkers.NewApprovalDecisionWorker(st.invoices, st.approvals, machine, slaMgr, auditLog, eventBus, logger)

	orch.Subscribe(bus.EventInvoiceProcessed, validationWorker.Handle)
	orch.Subscribe(bus.EventInvoiceProcessed, routingWorker.Handle)
	orch.Subscribe(bus.EventApprovalCompleted, approvalWorker.Handle)

	for _, d := range []interface{ Descriptor() core.Descriptor }{validationWorker, routingWorker, approvalWorker} {
		desc := d.Descriptor()
		logger.Info(context.Background(), "stage worker registered", map[string]interface{}{
			"name": desc.Name, "layer": string(desc.Layer), "capabilities": desc.Capabilities,
		})
	}

	// OCR and field extraction depend on collaborators (OCR engine, field
	// extractor, blob storage) that live outside this module's scope — no
	// concrete implementation ships here, so invoice.uploaded has no
	// subscriber until a deployment supplies one and wires it the same way
	// as the handlers above.
	logger.Warn(context.Background(), "no OCR/extraction/blob-storage collaborators configured; invoice.uploaded will not advance past upload", nil)

	rootCtx, cancelConsumers := context.WithCancel(context.Background())
	eventBus.StartConsumers(rootCtx)

	sweepInterval := runtime.ResolveDuration(0, "SLA_SWEEP_INTERVAL", 15*time.Minute)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", sweepInterval), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := slaMgr.Sweep(sweepCtx, ""); err != nil {
			logger.Error(sweepCtx, "sla sweep failed", err, nil)
		}
	}); err != nil {
		log.Fatalf("schedule sla sweep: %v", err)
	}
	scheduler.Start()

	server := httpapi.NewServer()
	listenAddr := determineAddr(*addr, cfg)
	httpServer := &http.Server{Addr: listenAddr, Handler: server.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	server.SetReady(true)
	log.Printf("invoiced listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	server.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop()
	cancelConsumers()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func openStores(dsn string, cfg *config.Config) (stores, func(), error) {
	if dsn == "" {
		return stores{
			invoices:   memory.NewInvoiceStore(),
			vendors:    memory.NewVendorStore(),
			approvals:  memory.NewApprovalStore(),
			workflow:   memory.NewWorkflowStore(),
			sla:        memory.NewSLAStore(),
			audit:      memory.NewAuditStore(),
			duplicates: memory.NewDuplicateIndexStore(),
			pos:        memory.NewPOStore(),
		}, nil, nil
	}

	connMaxLifetime := time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	store, err := postgres.Open(dsn, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, connMaxLifetime)
	if err != nil {
		return stores{}, nil, err
	}
	return stores{
		invoices: store, vendors: store, approvals: store, workflow: store,
		sla: store, audit: store, duplicates: store, pos: store,
	}, func() {}, nil
}

func openEventBus(cfg *config.Config, logger *logging.Logger) (*eventbus.Bus, func()) {
	busCfg := eventbus.Config{
		StreamMaxLen: cfg.Bus.StreamMaxLen,
	}

	if cfg.Bus.UseInMemory || strings.TrimSpace(cfg.Bus.RedisAddr) == "" {
		return eventbus.New(eventbus.NewMemoryTransport(), busCfg, logger), nil
	}

	client := redis.NewClient(eventbus.ParseRedisOptions(cfg.Bus.RedisAddr, cfg.Bus.RedisPassword, cfg.Bus.RedisDB))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error(context.Background(), "close redis client", err, nil)
		}
	}
	return eventbus.NewRedisBus(client, "invoiced", busCfg, logger), closeFn
}

// defaultApprovalRules seeds the routing engine from policy tunables until a
// tenant-configurable rule store exists: amounts under AutoApproveMaxAmount
// with a risk score under RiskReviewThreshold auto-approve, everything else
// routes to review. With auto-approval disabled no rule is seeded.
func defaultApprovalRules(cfg *config.Config) []approval.Rule {
	if !cfg.Policy.AutoApproveEnabled {
		return nil
	}
	return []approval.Rule{
		{
			ID:       "auto-approve-low-value",
			Name:     "Auto-approve low value invoices",
			Priority: 100,
			Active:   true,
			Conditions: []approval.Condition{
				{FieldPath: "amount", Operator: approval.OpLessThan, Value: cfg.Policy.AutoApproveMaxAmount},
				{FieldPath: "risk.overall_score", Operator: approval.OpLessThan, Value: cfg.Policy.RiskReviewThreshold},
			},
			ConditionLogic: approval.LogicAND,
			Actions: []approval.RuleAction{
				{Type: approval.ActionAutoApprove},
			},
		},
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg.Server.Port != 0 {
		host := strings.TrimSpace(cfg.Server.Host)
		if host == "" {
			host = "0.0.0.0"
		}
		return host + ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":8080"
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	return strings.TrimSpace(cfg.Database.DSN)
}

