package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/financekit/internal/buildinfo"
	"github.com/dmitrijs2005/financekit/internal/client/cli"
	"github.com/dmitrijs2005/financekit/internal/client/config"
	"github.com/dmitrijs2005/financekit/internal/client/core"
	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}

}

func run() error {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	if cfg.SecureStoreSecret == "" {
		fmt.Println("Unlock the local credential store.")
		secret, err := cli.GetPassword(os.Stdout)
		if err != nil {
			return err
		}
		cfg.SecureStoreSecret = string(secret)
		common.WipeByteArray(secret)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := core.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	state := c.Hydrate(ctx)
	logger.Debug(ctx, "hydrated", "session", state.String())

	cli.NewApp(c, logger, cfg.OnlineCheckInterval).Run(ctx)
	return nil
}
