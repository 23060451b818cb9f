package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"OpenDCA-Chain/internal/agent"
	"OpenDCA-Chain/internal/api"
	"OpenDCA-Chain/internal/config"
	"OpenDCA-Chain/internal/directory"
	"OpenDCA-Chain/internal/keeper"
	"OpenDCA-Chain/internal/market"
	"OpenDCA-Chain/internal/notify"
	"OpenDCA-Chain/pkg/logger"
)

// main 是 OpenDCA 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("opendcad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("OPENDCA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "opendca.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	// 智能体账本存储。
	var store agent.Store
	switch cfg.Storage.AgentStore.Driver {
	case "", "memory":
		store = agent.NewMemoryStore()
	case "mysql":
		mysqlStore, err := agent.NewMySQLStore(agent.MySQLConfig{
			DSN:             cfg.Storage.AgentStore.DSN,
			MaxOpenConns:    cfg.Storage.AgentStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.AgentStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.AgentStore.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.AgentStore.Driver)
	}
	if err := store.EnsurePlatform(ctx); err != nil {
		_ = store.Close()
		return err
	}

	// 目录服务投影。
	var dir directory.Directory
	switch cfg.Directory.Driver {
	case "", "memory":
		dir = directory.NewMemoryDirectory()
	case "redis":
		redisDir, err := directory.NewRedisDirectory(directory.RedisConfig{
			Address:   cfg.Directory.Redis.Address,
			Password:  cfg.Directory.Redis.Password,
			DB:        cfg.Directory.Redis.DB,
			KeyPrefix: cfg.Directory.Redis.KeyPrefix,
		})
		if err != nil {
			_ = store.Close()
			return err
		}
		dir = redisDir
	default:
		_ = store.Close()
		return fmt.Errorf("未知的目录驱动: %s", cfg.Directory.Driver)
	}

	// 事件通知。
	var publisher notify.Publisher
	switch cfg.Notify.Driver {
	case "", "log":
		publisher = notify.NewLogPublisher()
	case "rabbitmq":
		rabbit, err := notify.NewRabbitPublisher(notify.RabbitMQConfig{
			URL:        cfg.Notify.RabbitMQ.URL,
			Queue:      cfg.Notify.RabbitMQ.Queue,
			Durable:    cfg.Notify.RabbitMQ.Durable,
			AutoDelete: cfg.Notify.RabbitMQ.AutoDelete,
		})
		if err != nil {
			_ = store.Close()
			return err
		}
		publisher = rabbit
	default:
		_ = store.Close()
		return fmt.Errorf("未知的通知驱动: %s", cfg.Notify.Driver)
	}

	// 市场数据源与兑换路由。
	assets, err := market.LoadAssetDefinitions(cfg.Market.AssetsFile)
	if err != nil {
		_ = store.Close()
		return err
	}

	var (
		oracle market.PriceOracle
		router market.SwapRouter
	)
	switch cfg.Market.Driver {
	case "", "static":
		static := market.NewStaticOracle(assets.StaticPrices)
		oracle = static
		router = market.NewOracleRouter(static, assets.Quote)
	case "ethereum":
		chain, err := market.NewChainClient(ctx, cfg.Market.RPCURL, assets)
		if err != nil {
			_ = store.Close()
			return err
		}
		defer chain.Close()
		oracle = chain
		router = chain
	default:
		_ = store.Close()
		return fmt.Errorf("未知的市场驱动: %s", cfg.Market.Driver)
	}

	engine := agent.NewEngine(oracle, router, agent.WithQuoteAsset(assets.Quote))

	var policy keeper.Policy = keeper.DenyAll{}
	if len(cfg.Keeper.Allowed) > 0 {
		policy = keeper.NewStaticSet(cfg.Keeper.Allowed...)
	}

	svc := agent.NewService(store, dir, publisher, engine,
		agent.WithKeeperPolicy(policy))
	defer func() {
		if err := svc.Close(); err != nil {
			logger.L().Error("关闭服务失败", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, svc)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
