// Command rt4serv is the single binary: it loads configuration, opens
// the cache and XTEA key table, generates the login RSA keypair, and
// runs the proxy, JS5, worldlist, and login listeners alongside the
// world tick loop until a termination signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rt4serv/rt4serv/internal/cache"
	"github.com/rt4serv/rt4serv/internal/config"
	"github.com/rt4serv/rt4serv/internal/js5"
	"github.com/rt4serv/rt4serv/internal/login"
	"github.com/rt4serv/rt4serv/internal/netsession"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/rt4serv/rt4serv/internal/proxy"
	"github.com/rt4serv/rt4serv/internal/rsautil"
	"github.com/rt4serv/rt4serv/internal/world"
	"github.com/rt4serv/rt4serv/internal/worldlist"
	"github.com/rt4serv/rt4serv/internal/xtea"
)

// ConfigPath is overridable by RT4SERV_CONFIG for operators who keep
// their config file somewhere other than the working directory.
const ConfigPath = "config/rt4serv.yaml"

// playerCapacity and npcCapacity match the reference server's fixed
// slot-table sizes.
const (
	playerCapacity = 2048
	npcCapacity    = 8192
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("rt4serv: shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("rt4serv: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("RT4SERV_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOpts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Log.Level)}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, logOpts)
	if cfg.Log.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, logOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	slog.Info("rt4serv: starting",
		"proxy_addr", cfg.Server.ProxyAddr,
		"js5_addr", cfg.Server.JS5Addr,
		"worldlist_addr", cfg.Server.WorldlistAddr,
		"login_addr", cfg.Server.LoginAddr,
		"tick", cfg.TickDuration())

	store, err := cache.Open(cfg.Cache.Directory)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	masterIndex, err := cache.BuildMasterIndex(cfg.Cache.Directory)
	if err != nil {
		return fmt.Errorf("building master index: %w", err)
	}
	xteaKeys, err := xtea.Load(cfg.Cache.XTEAKeysPath)
	if err != nil {
		return fmt.Errorf("loading xtea keys: %w", err)
	}
	slog.Info("rt4serv: cache loaded", "xtea_keys", xteaKeys.Len())

	keys, err := rsautil.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating RSA keypair: %w", err)
	}

	registry := protoreg.New()
	world.RegisterOutbound(registry)
	specs := map[int]netsession.PacketSpec{}

	worldInstance := world.New(registry, cfg.QuotasValue(), playerCapacity, npcCapacity, xteaKeys)

	loginSvc := &login.Service{
		Keys:        keys,
		MasterIndex: masterIndex,
		Registry:    registry,
		Specs:       specs,
		XTEAKeys:    xteaKeys,
		OutBudget:   8192,
		SubmitLogin: worldInstance.SubmitLogin,
	}

	proxyLn, err := net.Listen("tcp", cfg.Server.ProxyAddr)
	if err != nil {
		return fmt.Errorf("listening proxy: %w", err)
	}
	js5Ln, err := net.Listen("tcp", cfg.Server.JS5Addr)
	if err != nil {
		return fmt.Errorf("listening js5: %w", err)
	}
	worldlistLn, err := net.Listen("tcp", cfg.Server.WorldlistAddr)
	if err != nil {
		return fmt.Errorf("listening worldlist: %w", err)
	}
	loginLn, err := net.Listen("tcp", cfg.Server.LoginAddr)
	if err != nil {
		return fmt.Errorf("listening login: %w", err)
	}

	backends := proxy.Backends{
		JS5:       cfg.Server.JS5Addr,
		Worldlist: cfg.Server.WorldlistAddr,
		Login:     cfg.Server.LoginAddr,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("rt4serv: proxy listening", "addr", cfg.Server.ProxyAddr)
		return proxy.Serve(gctx, proxyLn, backends)
	})
	g.Go(func() error {
		slog.Info("rt4serv: js5 listening", "addr", cfg.Server.JS5Addr)
		return js5.Listen(gctx, js5Ln, store, masterIndex, worldlist.DefaultParams)
	})
	g.Go(func() error {
		slog.Info("rt4serv: worldlist listening", "addr", cfg.Server.WorldlistAddr)
		return worldlist.Listen(gctx, worldlistLn, worldlist.DefaultParams)
	})
	g.Go(func() error {
		slog.Info("rt4serv: login listening", "addr", cfg.Server.LoginAddr)
		return loginSvc.Listen(gctx, loginLn)
	})
	g.Go(func() error {
		slog.Info("rt4serv: world loop starting", "tick", cfg.TickDuration())
		if err := worldInstance.Run(gctx, cfg.TickDuration()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world loop: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
