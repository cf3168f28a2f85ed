package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EduServer/apps/guard/internal/enforce"
	"EduServer/apps/guard/internal/handler"
	"EduServer/apps/guard/internal/identity"
	"EduServer/apps/guard/internal/manager"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/realtime"
	"EduServer/apps/guard/internal/repository"
	"EduServer/apps/guard/internal/router"
	"EduServer/apps/guard/internal/server"
	"EduServer/apps/guard/internal/service"
	"EduServer/apps/guard/mq"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/async"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/kafka"
	"EduServer/pkg/logger"
	"EduServer/pkg/mysql"
	pkgredis "EduServer/pkg/redis"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "yaml 配置文件路径，为空时使用默认配置")
	addr := pflag.String("addr", "", "HTTP 监听地址，覆盖配置文件")
	nodeID := pflag.Int64("node", 1, "snowflake 节点号")
	pflag.Parse()

	// 启动期日志使用固定 trace_id 串联
	ctx, cancel := context.WithCancel(ctxmeta.WithTraceID(context.Background(), "0"))
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// 1. 日志（必须最先完成）
	zl, err := logger.Build(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.ReplaceGlobal(zl)
	defer func() {
		_ = zl.Sync()
	}()

	// 2. 异步任务池与 ID 生成
	if err := async.Init(cfg.Async); err != nil {
		log.Fatalf("初始化协程池失败: %v", err)
	}
	defer func() {
		_ = async.Release()
	}()
	if err := util.InitSnowflake(*nodeID); err != nil {
		log.Fatalf("初始化雪花算法失败: %v", err)
	}

	// 3. MySQL：账号与审计日志
	db, err := mysql.Build(cfg.MySQL)
	if err != nil {
		log.Fatalf("初始化MySQL失败: %v", err)
	}
	mysql.ReplaceGlobal(db)
	if err := db.AutoMigrate(&model.Account{}, &model.AuditLog{}); err != nil {
		log.Fatalf("MySQL 建表失败: %v", err)
	}

	// 4. Redis：账号安全文档与在线状态。不可用时降级为单进程内存存储
	var (
		store    repository.DocumentStore
		presence repository.PresenceRepository
	)
	redisClient, err := pkgredis.Build(cfg.Redis)
	if err != nil {
		logger.Warn(ctx, "Redis 初始化失败，降级为单进程内存存储",
			logger.ErrorField("error", err),
		)
		redisClient = nil
		store = repository.NewMemoryDocumentStore()
		presence = repository.NewMemoryPresenceRepository()
	} else {
		pkgredis.ReplaceGlobal(redisClient)
		store = repository.NewRedisDocumentStore(redisClient)
		presence = repository.NewRedisPresenceRepository(redisClient)
		logger.Info(ctx, "Redis 初始化成功",
			logger.String("addr", cfg.Redis.Addr),
		)
	}

	// 5. 领域组件
	var geo identity.GeoLocator
	if cfg.Geo.Enabled {
		geo = identity.NewProviderChain(cfg.Geo, &http.Client{})
	}
	resolver := identity.NewResolver(geo)
	engine := enforce.NewEngine(enforce.PolicyFromConfig(cfg.Guard), util.NextID)
	jwt := util.NewJWTManager(cfg.JWT)
	notifier := service.NewMailNotifier(cfg.Mail)

	// 6. Kafka：审计流；Redis 可用时再启动重试队列
	var auditPublisher service.EventPublisher
	var producers []*kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		auditProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		auditPublisher = auditProducer
		producers = append(producers, auditProducer)
	}

	accountRepo := repository.NewAccountRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	deviceSvc := service.NewDeviceService(store, presence, resolver, engine, notifier, cfg.Guard)
	adminSvc := service.NewAdminService(store, presence, deviceSvc, engine, service.NewAuditSink(auditRepo, auditPublisher), notifier, cfg.Guard)
	authSvc := service.NewAuthService(accountRepo, store, jwt)

	if redisClient != nil && len(cfg.Kafka.Brokers) > 0 {
		retryProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RedisRetryTopic)
		producers = append(producers, retryProducer)
		mq.InitRetryProducer(retryProducer)

		reader := kafka.NewReader(
			cfg.Kafka.Brokers,
			cfg.Kafka.RedisRetryTopic,
			cfg.Kafka.ConsumerConfig.GroupID,
			kafka.NewZapLoggerAdapter(logger.L()),
			kafka.NewZapErrorLoggerAdapter(logger.L()),
		)
		consumer := mq.NewRetryConsumer(reader, redisClient, deviceSvc, retryProducer)
		go func() {
			logger.Info(ctx, "Redis 重试消费者启动中",
				logger.String("topic", cfg.Kafka.RedisRetryTopic),
				logger.String("group_id", cfg.Kafka.ConsumerConfig.GroupID),
			)
			if err := consumer.Run(ctx); err != nil {
				logger.Error(ctx, "Redis 重试消费者运行错误", logger.ErrorField("error", err))
			}
		}()
	}
	defer func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				logger.Error(ctx, "关闭 Kafka Producer 失败", logger.ErrorField("error", err))
			}
		}
	}()

	// 7. 实时通道
	connManager := manager.NewConnectionManager()
	unsubscribe := authSvc.OnAuthStateChanged(connManager.HandleAuthState)
	defer unsubscribe()
	banCache := realtime.NewBanCache(cfg.Guard.BanCacheSize, cfg.Guard.BanCacheTTL)

	// 8. HTTP 路由
	gin.SetMode(cfg.Server.GinMode)
	// 避免把 nil 的 *redis.Client 装进接口
	var limiterClient redis.Scripter
	if redisClient != nil {
		limiterClient = redisClient
	}
	engineHTTP := router.InitRouter(router.Handlers{
		Auth:   handler.NewAuthHandler(authSvc, deviceSvc),
		Device: handler.NewDeviceHandler(deviceSvc, banCache, jwt),
		Admin:  handler.NewAdminHandler(adminSvc),
		WS:     handler.NewWSHandler(connManager, jwt, deviceSvc, store, banCache, cfg.Guard.GracePeriod),
	}, router.Options{
		JWT:          jwt,
		LoginLimiter: middleware.NewRateLimiter(limiterClient, cfg.Server.LoginRate, cfg.Server.LoginBurst),
	})

	srv := server.New(cfg.Server, engineHTTP)
	go func() {
		logger.Info(ctx, "Guard 服务启动中", logger.String("addr", cfg.Server.Addr))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Guard 服务启动失败", logger.ErrorField("error", err))
			cancel()
		}
	}()

	healthSrv := server.NewHealthServer(cfg.Server.GRPCAddr)
	healthSrv.SetServing(true)
	go func() {
		if err := healthSrv.Start(ctx); err != nil {
			logger.Error(ctx, "gRPC 健康检查服务启动失败", logger.ErrorField("error", err))
		}
	}()

	// 9. 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	// 先断开全部 WebSocket，再等待进行中的 HTTP 请求
	logger.Info(ctx, "Guard 服务开始优雅停机")
	healthSrv.SetServing(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	connManager.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Guard 服务优雅停机失败", logger.ErrorField("error", err))
	}
	healthSrv.Stop()
	cancel()
	// 给异步任务（离线标记、审计）留出落盘时间
	time.Sleep(200 * time.Millisecond)

	logger.Info(ctx, "Guard 服务已退出")
}
