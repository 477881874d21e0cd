package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dpatel76/SynapseDTE2-sub001/internal/config"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/infrastructure/persistence"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/presentation/controllers"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/services"
	"github.com/dpatel76/SynapseDTE2-sub001/pkg/authz"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

// HandlerOptions lets tests and embedders swap every external dependency.
// Zero fields fall back to config-driven defaults.
type HandlerOptions struct {
	Config *config.Config

	Store      ports.WorkflowStore
	Authorizer authorizer
	Autosave   *services.AutoSaveCoordinator
	NowUTC     func() time.Time
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.LoadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("server: load config: %w", err)
		}
		cfg = loaded
	}

	nowUTC := opts.NowUTC
	if nowUTC == nil {
		nowUTC = func() time.Time { return time.Now().UTC() }
	}

	store := opts.Store
	if store == nil {
		s, err := openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		store = s
	}

	rules := cfg.Escalation.Rules
	if len(rules) == 0 {
		rules = services.DefaultEscalationRules()
	}
	escalation, err := services.NewEscalationPolicy(rules)
	if err != nil {
		return nil, fmt.Errorf("server: escalation rules: %w", err)
	}

	gateway := services.NewWorkflowGateway(store, nowUTC, escalation)

	autosave := opts.Autosave
	if autosave == nil {
		autosave = services.NewAutoSaveCoordinator(cfg.Autosave.QuietPeriod.Std(), cfg.Autosave.RetryBackoff.Std())
	}

	auth := opts.Authorizer
	if auth == nil {
		mode, err := authzMode(cfg.Authz.Mode)
		if err != nil {
			return nil, err
		}
		a, err := loadAuthorizer(mode, cfg.Authz.ModelPath, cfg.Authz.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("server: authorizer: %w", err)
		}
		auth = a
	}

	controller := controllers.WorkflowController{
		TenantID: TenantIDFromContext,
		Gateway:  gateway,
		Autosave: autosave,
	}

	metrics := newServerMetrics()
	workflowMetrics := services.NewWorkflowMetrics(metrics.registry)
	gateway.UseMetrics(workflowMetrics)
	autosave.UseMetrics(workflowMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/scoping/cycles", controller.HandleCycles)
	mux.HandleFunc("/api/scoping/versions", controller.HandleVersions)
	mux.HandleFunc("/api/scoping/decisions", controller.HandleDecisions)
	mux.HandleFunc("/api/scoping/decisions/bulk", controller.HandleBulkDecisions)
	mux.HandleFunc("/api/scoping/decisions/autosave", controller.HandleAutosave)
	mux.HandleFunc("/api/scoping/decisions/autosave/flush", controller.HandleAutosaveFlush)
	mux.HandleFunc("/api/scoping/owner-decisions", controller.HandleOwnerDecisions)
	mux.HandleFunc("/api/scoping/versions/submit", controller.HandleSubmit)
	mux.HandleFunc("/api/scoping/versions/approve", controller.HandleApprove)
	mux.HandleFunc("/api/scoping/versions/reject", controller.HandleReject)
	mux.HandleFunc("/api/scoping/versions/request-revision", controller.HandleRequestRevision)
	mux.HandleFunc("/api/scoping/versions/resubmit", controller.HandleResubmit)
	mux.HandleFunc("/api/scoping/versions/resolve", controller.HandleResolve)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.handler())

	return metrics.instrument(withTenancy(withAuthz(auth, mux))), nil
}

func openStore(cfg config.StoreConfig) (ports.WorkflowStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return persistence.NewMemoryStore(), nil
	case "sqlite":
		store, err := persistence.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("server: open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = dbDSNFromEnv()
		}
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, fmt.Errorf("server: open pg pool: %w", err)
		}
		if err := persistence.ApplyPGSchema(context.Background(), pool); err != nil {
			return nil, fmt.Errorf("server: apply pg schema: %w", err)
		}
		return persistence.NewPGStore(pool), nil
	default:
		return nil, fmt.Errorf("server: unknown store backend %q", cfg.Backend)
	}
}

func authzMode(raw string) (authz.Mode, error) {
	switch raw {
	case "":
		return authz.ModeFromEnv()
	case "enforce":
		return authz.ModeEnforce, nil
	case "shadow":
		return authz.ModeShadow, nil
	case "disabled":
		return authz.ModeDisabled, nil
	default:
		return "", fmt.Errorf("server: unknown authz mode %q", raw)
	}
}
