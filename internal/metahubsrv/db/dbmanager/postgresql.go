package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/config"
)

// sessionSetup runs on every checkout. lock_timeout bounds row-lock and
// advisory-lock waits so a stuck transaction cannot wedge the pool.
var sessionSetup = []string{
	"SET lock_timeout = '5s'",
	"SET statement_timeout = '5s'",
}

type pgPool struct {
	db       *sql.DB
	scopes   []string
	requests atomic.Uint64
	returns  atomic.Uint64
}

type pgConn struct {
	pool   *pgPool
	conn   *sql.Conn
	cancel context.CancelFunc
	active map[string]string
}

// NewPostgresqlDb opens the PostgreSQL pool. The initial ping is retried
// with backoff so the server survives a database that comes up slightly
// after it.
func NewPostgresqlDb(configuredScopes []string) (ScopedDb, error) {
	sqlDB, err := sql.Open("pgx", config.MetahubDsn())
	if err != nil {
		log.Error().Err(err).Msg("failed to open db")
		return nil, err
	}

	err = retry.Do(sqlDB.Ping,
		retry.Attempts(5),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.BackOffDelay))
	if err != nil {
		log.Error().Err(err).Msg("failed to ping db")
		sqlDB.Close()
		return nil, err
	}

	return &pgPool{db: sqlDB, scopes: configuredScopes}, nil
}

// Conn checks a connection out of the pool, applies session timeouts and
// clears any scope GUCs a previous user of the session may have left set.
func (p *pgPool) Conn(ctx context.Context) (ScopedConn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		cancel()
		return nil, err
	}

	h := &pgConn{
		pool:   p,
		conn:   conn,
		cancel: cancel,
		active: make(map[string]string),
	}

	for _, stmt := range sessionSetup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("stmt", stmt).Msg("session setup failed")
			h.Close(ctx)
			return nil, err
		}
	}
	if err := h.DropScopes(ctx, p.scopes); err != nil {
		h.Close(ctx)
		return nil, err
	}

	p.requests.Add(1)
	return h, nil
}

func (p *pgPool) Stats() (requests, returns uint64) {
	return p.requests.Load(), p.returns.Load()
}

// Close resets the session scopes and returns the connection to the pool.
func (h *pgConn) Close(ctx context.Context) {
	h.DropAllScopes(ctx)
	if h.cancel != nil {
		h.cancel()
	}
	if h.conn != nil {
		h.conn.Close()
	}
	h.pool.returns.Add(1)
}

func (h *pgConn) configured(scope string) bool {
	for _, s := range h.pool.scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (h *pgConn) setScope(ctx context.Context, scope, value string) {
	// scope names come from the fixed configured list, never from input
	if _, err := h.conn.ExecContext(ctx, fmt.Sprintf("SET %s TO $1", scope), value); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("scope", scope).Msg("failed to set scope")
		panic(err)
	}
	h.active[scope] = value
}

func (h *pgConn) resetScope(ctx context.Context, scope string) error {
	if _, err := h.conn.ExecContext(ctx, fmt.Sprintf("RESET %s", scope)); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("scope", scope).Msg("failed to reset scope")
		return err
	}
	delete(h.active, scope)
	return nil
}

func (h *pgConn) AddScopes(ctx context.Context, scopes map[string]string) {
	if h.conn == nil {
		return
	}
	for scope, value := range scopes {
		if h.configured(scope) {
			h.setScope(ctx, scope, value)
		}
	}
}

func (h *pgConn) AddScope(ctx context.Context, scope, value string) {
	if h.conn == nil || !h.configured(scope) {
		return
	}
	h.setScope(ctx, scope, value)
}

func (h *pgConn) DropScopes(ctx context.Context, scopes []string) error {
	if h.conn == nil {
		return nil
	}
	for _, scope := range scopes {
		if err := h.resetScope(ctx, scope); err != nil {
			return err
		}
	}
	return nil
}

func (h *pgConn) DropScope(ctx context.Context, scope string) error {
	if h.conn == nil {
		return nil
	}
	return h.resetScope(ctx, scope)
}

func (h *pgConn) DropAllScopes(ctx context.Context) error {
	return h.DropScopes(ctx, h.pool.scopes)
}

func (h *pgConn) Conn() *sql.Conn {
	return h.conn
}
