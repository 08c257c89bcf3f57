package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/logtrace"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/config"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/registry"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile *string
}

func main() {

	slog := log.With().Str("state", "init").Logger()
	opt := parseFlags()

	slog.Info().Str("config_file", *opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(*opt.configFile); err != nil {
		slog.Error().Str("config_file", *opt.configFile).Err(err).Msg("unable to load config file")
		os.Exit(1)
	}
	if err := db.Init(); err != nil {
		slog.Error().Err(err).Msg("unable to initialize db pool")
		os.Exit(1)
	}
	if err := ensurePublicTables(); err != nil {
		slog.Error().Err(err).Msg("unable to create public tables")
		os.Exit(1)
	}
	if config.Config().SingleTenantMode {
		slog.Info().Msg("single tenant mode enabled")
		if err := bootstrapDefaultTenant(); err != nil {
			slog.Error().Err(err).Msg("unable to bootstrap default tenant")
			os.Exit(1)
		}
	}

	// The registries are consumed by a separately deployed transport layer;
	// this process owns the pool and the schema lifecycle.
	slog.Info().Str("port", config.Config().ServerPort).Msg("metahub server ready")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info().Msg("shutting down")
}

func ensurePublicTables() error {
	ctx := db.ConnCtx(context.Background())
	defer db.DB(ctx).Close(ctx)
	if err := db.DB(ctx).EnsurePublicTables(ctx); err != nil {
		return err
	}
	return nil
}

// bootstrapDefaultTenant creates the configured tenant and its default
// branch if they do not exist yet. Safe to run on every start.
func bootstrapDefaultTenant() error {
	name := config.Config().DefaultTenantName
	if name == "" {
		return errors.New("default tenant name not configured")
	}
	ctx := db.ConnCtx(context.Background())
	defer db.DB(ctx).Close(ctx)

	if _, err := db.DB(ctx).GetTenantByName(ctx, name); err == nil {
		return nil
	}
	tenant, err := registry.CreateTenant(ctx, &registry.CreateTenantRequest{Name: name})
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("tenant_id", tenant.TenantID.String()).Msg("created default tenant")

	ctx = mhcommon.SetTenantIdInContext(ctx, tenant.TenantID)
	if _, err := registry.EnsureSchema(ctx); err != nil {
		return err
	}
	return nil
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	opt.configFile = flag.String("config", mhcommon.DefaultConfigFile, "Path to the config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
