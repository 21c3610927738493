// Command dealflow 启动销售流程服务。
//
// 配置从 ./config.yaml（或 ./config/config.yaml）读取，环境变量 DEALFLOW_* 优先。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/config"
	"github.com/ceyewan/dealflow/internal/bootstrap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dealflow:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := config.New(&config.Config{Name: "config", EnvPrefix: "DEALFLOW"})
	if err != nil {
		return err
	}
	if err := loader.Load(ctx); err != nil {
		return err
	}
	cfg := bootstrap.DefaultAppConfig()
	if err := loader.Unmarshal(&cfg); err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			app.Logger.Error("shutdown failed", clog.Error(err))
		}
	}()

	if err := app.WatchResilience(ctx, loader); err != nil {
		return err
	}
	return app.Run(ctx)
}
