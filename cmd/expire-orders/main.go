package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/infra/db"
	"storefront/internal/infra/event"
	"storefront/internal/infra/logger"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/usecase"

	"go.uber.org/zap"
)

// cronから1回だけ実行する用
func main() {
	batch := flag.Int("batch", 500, "max orders to expire in one run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Connect(cfg.Postgres, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	var publisher interface {
		usecase.OrderEventPublisher
		Close() error
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		publisher = event.NewKafkaPublisher(brokers, cfg.KafkaOrderTopic, log)
	} else {
		publisher = event.NewLogPublisher(log)
	}
	defer publisher.Close()

	uc := usecase.NewAdminOrderUsecase(usecase.OrderDeps{
		Tx:        infraRepo.NewTxManagerGorm(gormDB),
		Orders:    infraRepo.NewOrderGormRepository(gormDB),
		Items:     infraRepo.NewOrderItemGormRepository(gormDB),
		Addresses: infraRepo.NewAddressGormRepository(gormDB),
		Users:     infraRepo.NewUserGormRepository(gormDB),
		AuditLogs: infraRepo.NewAuditLogGormRepository(gormDB),
		Events:    publisher,
		Log:       log,
	})

	n, err := uc.ExpireUnpaid(ctx, cfg.OrderReservationTTL, *batch)
	if err != nil {
		log.Fatal("expire unpaid orders failed", zap.Error(err))
	}
	log.Info("expired unpaid orders", zap.Int("count", n))
}
