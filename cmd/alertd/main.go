package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/y001j/pizzeria-alerts/internal/core"

	// 导入所有内置通知渠道以触发注册
	_ "github.com/y001j/pizzeria-alerts/internal/notify/console"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/database"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/email"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/influxdb"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/jetstream"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/mqtt"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/redis"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/webhook"
	_ "github.com/y001j/pizzeria-alerts/internal/notify/websocket"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	rt, err := core.NewRuntime(*cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("init runtime")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := rt.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start runtime")
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), rt.Config.Engine.ShutdownTimeout)
	defer stopCancel()
	if err := rt.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	cancel()
}
