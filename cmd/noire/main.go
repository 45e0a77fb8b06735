package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	auth "github.com/goliatone/go-noire"
	"github.com/goliatone/go-noire/config"
	"github.com/goliatone/go-noire/server"
)

func main() {
	fs := pflag.NewFlagSet("noire", pflag.ExitOnError)
	config.Flags(fs)
	seed := fs.String("seed-admin", "", "create an admin account, user:password[:email]")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	lgr := auth.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	db, err := server.OpenDB(cfg.Database)
	if err != nil {
		lgr.Error("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, err := server.New(cfg, db, server.WithLogger(lgr))
	if err != nil {
		lgr.Error("build server: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Repository().CreateSchema(ctx); err != nil {
		lgr.Error("create schema: %v", err)
		os.Exit(1)
	}

	if *seed != "" {
		acc, err := server.ParseSeedCredentials(*seed)
		if err != nil {
			lgr.Error("%v", err)
			os.Exit(1)
		}
		user, err := server.SeedAdmin(ctx, srv.Repository(), srv.Credentials().Hasher(), acc)
		switch {
		case errors.Is(err, auth.ErrUserExists):
			lgr.Warn("seed admin: %s already exists", acc.Username)
		case err != nil:
			lgr.Error("seed admin: %v", err)
			os.Exit(1)
		default:
			lgr.Info("seeded admin %s <%s> id=%d", user.Username, user.Email, user.ID)
		}
	}

	go func() {
		lgr.Info("listening on %s", cfg.Server.Address)
		if err := srv.Listen(); err != nil {
			lgr.Error("listen: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown: %v", err)
	}
	lgr.Info("bye")
}
