package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/action"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/config"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/sdk"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/store"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var gameName string
	var forceEvery time.Duration

	flagSet := pflag.NewFlagSet("neurogame", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a JSON config file (comments allowed)")
	flagSet.StringVar(&gameName, "game", "Epic Game", "game name used when the config does not set one")
	flagSet.DurationVar(&forceEvery, "force-every", 5*time.Second, "how often to offer a forced action, 0 to disable")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Game == "" {
		cfg.Game = gameName
	}

	var st store.Store
	if cfg.Store.RedisAddr != "" {
		redisStore := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Game)
		defer redisStore.Close()
		st = redisStore
		log.Printf("use redis store: %s", cfg.Store.RedisAddr)
	} else {
		st = store.NewMemoryStore()
		log.Printf("use memory store")
	}

	game := sdk.New(cfg.Game, cfg.Session.URL,
		sdk.WithStore(st, cfg.Store.ResultTTL()),
		sdk.WithSessionOptions(
			ws.WithInvalidURLPoll(cfg.Session.InvalidURLPoll()),
			ws.WithReconnectInterval(cfg.Session.ReconnectInterval()),
			ws.WithPingInterval(cfg.Session.PingInterval()),
		),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		game.Shutdown()
	}()

	if forceEvery > 0 {
		go offerLoop(ctx, game, forceEvery)
	}

	log.Printf("game %q connecting to %s", cfg.Game, cfg.Session.URL)
	if err := game.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func offerLoop(ctx context.Context, game *sdk.SDK, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := "Current state!"
			err := game.ForceAction(&state, "Please send an echo:", false, demoActions(), func(_ context.Context, a action.Action) {
				log.Printf("executed action callback: action=%s", a.Name())
			})
			if err != nil && !errors.Is(err, sdk.ErrForceOutstanding) {
				log.Printf("force action failed: %v", err)
			}
		}
	}
}
