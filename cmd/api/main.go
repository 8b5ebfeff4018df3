package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/event"
	"storefront/internal/infra/logger"
	"storefront/internal/infra/mail"
	"storefront/internal/infra/metrics"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/storage"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	//DB接続
	gormDB, err := db.Connect(cfg.Postgres, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	cartRepo := infraRepo.NewCartItemGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	otpRepo := infraRepo.NewOTPGormRepository(gormDB)
	reportRepo := infraRepo.NewReportGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//外部サービス
	mailer := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)

	gateway := payment.NewClient(payment.Config{
		BaseURL:    cfg.PaymentBaseURL,
		SecretKey:  cfg.PaymentSecretKey,
		Timeout:    cfg.PaymentTimeout,
		ProductURL: cfg.PaymentProductURL,
	}, log)

	var pending usecase.RegistrationStore
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		pending = cache.NewRegistrationStore(rdb)
	} else {
		log.Warn("REDIS_ADDR is empty, pending registrations are kept in memory")
		pending = cache.NewMemoryRegistrationStore()
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

	var images usecase.ImageStore
	if cfg.S3Bucket != "" {
		s3store, err := storage.NewS3ImageStore(ctx, storage.S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
		}, log)
		if err != nil {
			return err
		}
		images = s3store
	}

	promRegistry := metrics.New()

	//usecaseに渡す部品
	clock := usecase.SystemClock()
	ids := usecase.UUIDGenerator()
	hasher := usecase.BcryptHasher{Cost: 12}

	//Usecase生成
	authUC := usecase.NewAuthUsecase(usecase.AuthDeps{
		Users:         userRepo,
		RefreshTokens: rtRepo,
		AuditLogs:     auditRepo,
		Hasher:        hasher,
		Tokens:        usecase.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		RefreshTTL:    cfg.RefreshTokenTTL,
		Clock:         clock,
		IDs:           ids,
		Log:           log,
	})
	registrationUC := usecase.NewRegistrationUsecase(usecase.RegistrationDeps{
		Tx:              txm,
		Users:           userRepo,
		OTPs:            otpRepo,
		AuditLogs:       auditRepo,
		Pending:         pending,
		Mailer:          mailer,
		Hasher:          hasher,
		OTPExpiry:       cfg.OTPExpiry,
		RegistrationTTL: cfg.RegistrationTTL,
		Clock:           clock,
		Log:             log,
	})
	productUC := usecase.NewProductUsecase(usecase.ProductDeps{
		Tx:         txm,
		Products:   productRepo,
		Inventory:  inventoryRepo,
		Categories: categoryRepo,
		AuditLogs:  auditRepo,
		Images:     images,
		Clock:      clock,
		IDs:        ids,
		Log:        log,
	})
	categoryUC := usecase.NewCategoryUsecase(categoryRepo, productRepo, auditRepo, clock, log)
	cartUC := usecase.NewCartUsecase(cartRepo, productRepo)
	addressUC := usecase.NewAddressUsecase(addressRepo, clock)

	orderDeps := usecase.OrderDeps{
		Tx:        txm,
		Orders:    orderRepo,
		Items:     orderItemRepo,
		Addresses: addressRepo,
		Users:     userRepo,
		AuditLogs: auditRepo,
		Gateway:   gateway,
		Events:    publisher,
		Mailer:    mailer,
		Metrics:   promRegistry,
		Clock:     clock,
		IDs:       ids,
		Log:       log,
	}
	orderUC := usecase.NewOrderUsecase(orderDeps)
	adminOrderUC := usecase.NewAdminOrderUsecase(orderDeps)
	adminUserUC := usecase.NewAdminUserUsecase(userRepo, rtRepo, auditRepo, clock, log)
	reportUC := usecase.NewReportUsecase(reportRepo, auditRepo, clock)

	//Handler生成
	handlers := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, registrationUC, cfg.RefreshTokenTTL, cfg.CookieSecure),
		Product:      handler.NewProductHandler(productUC, categoryUC),
		Cart:         handler.NewCartHandler(cartUC),
		Address:      handler.NewAddressHandler(addressUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminProduct: handler.NewAdminProductHandler(productUC, categoryUC),
		AdminUser:    handler.NewAdminUserHandler(adminUserUC, authUC),
		AdminReport:  handler.NewAdminReportHandler(reportUC),
	}

	e := server.New(server.Options{
		Config:  cfg,
		Log:     log,
		Users:   userRepo,
		Metrics: promRegistry,
		Health: func(ctx context.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}, handlers)

	//未払いのゲートウェイ注文を定期的に失効させる
	//Server起動
	return server.Start(ctx, e, cfg.Addr(), log)
}
