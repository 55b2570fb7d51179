// File path: cmd/nlsqld/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	redis "github.com/redis/go-redis/v9"

	"github.com/careatlas/nlsql/internal/agent"
	"github.com/careatlas/nlsql/internal/api"
	"github.com/careatlas/nlsql/internal/audit"
	"github.com/careatlas/nlsql/internal/common"
	ctxbuilder "github.com/careatlas/nlsql/internal/context"
	"github.com/careatlas/nlsql/internal/llm"
	"github.com/careatlas/nlsql/internal/schema"
	"github.com/careatlas/nlsql/internal/validator"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("nlsql: .env file not loaded", "error", err)
	} else {
		logger.Info("nlsql: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	auditPath := flag.String("audit", defaultAuditPath(), "path to the SQLite audit database")
	flag.Parse()

	logger.Info("nlsql: startup initiated", "addr", *addr, "audit", *auditPath)

	databaseURL := strings.TrimSpace(os.Getenv("NLSQL_DATABASE_URL"))
	if databaseURL == "" {
		logger.Error("nlsql: NLSQL_DATABASE_URL not set")
		fmt.Println("database error: NLSQL_DATABASE_URL not set")
		os.Exit(1)
	}

	schemaCfg, err := schema.LoadConfig()
	if err != nil {
		logger.Error("nlsql: schema config load failed", "error", err)
		fmt.Println("schema config error:", err)
		os.Exit(1)
	}
	contextCfg, err := ctxbuilder.LoadConfig()
	if err != nil {
		logger.Error("nlsql: context config load failed", "error", err)
		fmt.Println("context config error:", err)
		os.Exit(1)
	}
	validatorCfg, err := validator.LoadConfig()
	if err != nil {
		logger.Error("nlsql: validator config load failed", "error", err)
		fmt.Println("validator config error:", err)
		os.Exit(1)
	}
	agentCfg, err := agent.LoadConfig()
	if err != nil {
		logger.Error("nlsql: agent config load failed", "error", err)
		fmt.Println("agent config error:", err)
		os.Exit(1)
	}

	introspectDB, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		logger.Error("nlsql: introspection pool open failed", "error", err)
		fmt.Println("database error:", err)
		os.Exit(1)
	}
	defer introspectDB.Close()
	introspectDB.SetMaxOpenConns(2)

	readOnly, err := readOnlyDSN(databaseURL, validatorCfg.StatementTimeout)
	if err != nil {
		logger.Error("nlsql: read-only DSN construction failed", "error", err)
		fmt.Println("database error:", err)
		os.Exit(1)
	}
	validatorDB, err := sqlx.Open("postgres", readOnly)
	if err != nil {
		logger.Error("nlsql: validator pool open failed", "error", err)
		fmt.Println("database error:", err)
		os.Exit(1)
	}
	defer validatorDB.Close()
	validatorDB.SetMaxOpenConns(4)

	exploreDB, err := sqlx.Open("postgres", readOnly)
	if err != nil {
		logger.Error("nlsql: exploratory pool open failed", "error", err)
		fmt.Println("database error:", err)
		os.Exit(1)
	}
	defer exploreDB.Close()
	exploreDB.SetMaxOpenConns(4)

	cache := schema.NewCache(schema.NewPGIntrospector(introspectDB, schemaCfg.Schemas), schemaCfg)
	warmCtx, warmCancel := context.WithTimeout(ctx, schemaCfg.RefreshTimeout)
	if manifest, err := cache.Warm(warmCtx); err != nil {
		logger.Warn("nlsql: schema warm failed, serving degraded until refresh succeeds", "error", err)
	} else {
		logger.Info("nlsql: schema snapshot ready", "snapshot", manifest.SnapshotID, "tables", len(manifest.Tables))
	}
	warmCancel()

	var broadcast *schema.RedisBroadcast
	if redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		broadcast = schema.NewRedisBroadcast(client, schemaCfg.Channel)
		go broadcast.Listen(ctx, cache, schemaCfg.RefreshTimeout)
		logger.Info("nlsql: schema invalidation broadcast enabled", "addr", redisAddr, "channel", schemaCfg.Channel)
	} else {
		logger.Info("nlsql: redis not configured, schema busts stay local")
	}
	invalidator := schema.NewInvalidator(cache, broadcast)

	builder := ctxbuilder.NewBuilder(contextCfg)
	mru := ctxbuilder.NewMRU(ctxbuilder.DefaultMRUCapacity)

	check := validator.New(validatorCfg, validator.NewPGPlanRunner(validatorDB))

	auditStore, err := audit.Open(*auditPath)
	if err != nil {
		logger.Error("nlsql: audit store open failed", "error", err)
		fmt.Println("audit store error:", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	provider := llm.NewProvider()
	logger.Info("nlsql: llm provider ready", "provider", provider.Name())

	tools := agent.NewToolExecutor(exploreDB, check, agentCfg)
	orch := agent.NewOrchestrator(provider, cache, builder, mru, check, tools, auditStore, agentCfg)

	server := api.NewServer(orch, cache, invalidator, auditStore)

	logger.Info("nlsql: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("nlsql: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("nlsql: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultAuditPath() string {
	if env := strings.TrimSpace(os.Getenv("NLSQL_AUDIT_PATH")); env != "" {
		return env
	}
	return filepath.Join("data", "audit.db")
}

// readOnlyDSN derives a connection string for the validator and exploratory
// pools: every session opens read-only with a hard statement timeout, so even
// a query that slips past validation cannot mutate state or hog the backend.
func readOnlyDSN(base string, timeout time.Duration) (string, error) {
	options := fmt.Sprintf("-c default_transaction_read_only=on -c statement_timeout=%d", timeout.Milliseconds())
	if strings.Contains(base, "://") {
		parsed, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		query := parsed.Query()
		query.Set("options", options)
		parsed.RawQuery = query.Encode()
		return parsed.String(), nil
	}
	return base + fmt.Sprintf(" options='%s'", options), nil
}
