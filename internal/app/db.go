package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	"github.com/riskibarqy/lineup-orchestrator/internal/config"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	cachedrepo "github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"
)

const (
	dbPingTimeout        = 5 * time.Second
	maxTracedQueryLength = 512
)

// openJobLedger returns the Postgres job ledger, fronted by store, when DB_URL
// is set and the in-process one otherwise.
func openJobLedger(ctx context.Context, cfg config.Config, store *cache.Store, logger *logging.Logger) (optimization.Repository, func() error, error) {
	if cfg.DBURL == "" {
		logger.Info("optimization job ledger", "backend", "memory")
		return memory.NewOptimizationJobRepository(), nil, nil
	}

	target, err := ResolveDBTarget(cfg.DBURL, cfg.DBDisablePreparedBinary)
	if err != nil {
		return nil, nil, err
	}
	db, err := otelsqlx.Open("postgres", target.DSN,
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
		otelsql.WithDBName(target.Name),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("optimization job ledger", "backend", "postgres", "db_name", target.Name, "db_host", target.Host)
	ledger := cachedrepo.NewOptimizationJobRepository(postgres.NewOptimizationJobRepository(db), store, cfg.CacheOptimizationTTL)
	return ledger, db.Close, nil
}

// formatDBQueryForTrace drops line comments and folds whitespace so span
// names stay on one line, then caps the length.
func formatDBQueryForTrace(query string) string {
	var b strings.Builder
	for _, line := range strings.Split(query, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		for _, word := range strings.Fields(line) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(word)
		}
	}

	out := b.String()
	if len(out) <= maxTracedQueryLength {
		return out
	}
	cut := maxTracedQueryLength
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut] + "..."
}
