package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/initializer"
)

func main() {
	cfgPath := flag.String("config", "./config.json", "path of the JSON config file")
	addr := flag.String("addr", "", "display server address, overrides the config value (e.g. "+config.DefaultServerAddr+")")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cryptofeed:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = initializer.Start(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "cryptofeed:", err)
		os.Exit(1)
	}
}
