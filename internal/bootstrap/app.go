package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "gamebuddies-server/internal/handler/http"
	wsHandler "gamebuddies-server/internal/handler/websocket"
	"gamebuddies-server/internal/hub"
	gormpersistence "gamebuddies-server/internal/infra/persistence/gorm"
	"gamebuddies-server/internal/infra/setup"
	redisstate "gamebuddies-server/internal/infra/state/redis"
	"gamebuddies-server/internal/middleware"
	"gamebuddies-server/internal/registry"
	"gamebuddies-server/internal/service"
	"gamebuddies-server/internal/tasks"
	"gamebuddies-server/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	JWTExpiryHours  int
	AppEnv          string // 应用环境 (development/production)
	KeyPrefix       string // Redis Key 前缀

	ServiceKeys string // 外部服务凭证表 (key:name:types;...)

	GraceWindow      time.Duration // 断连宽限窗口
	CoalesceInterval time.Duration // 心跳合并窗口
	HeartbeatMaxIdle time.Duration // 连接被判定陈旧的静默时长
	Retention        time.Duration // 终态房间保留期
	IdleRetention    time.Duration // 闲置房间保留期
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),
		ServiceKeys:   os.Getenv("SERVICE_KEYS"),
		// --- 设置默认值 ---
		RateLimitMax:     100,
		RateLimitWindow:  1 * time.Second,
		JWTExpiryHours:   24,
		GraceWindow:      30 * time.Second,
		CoalesceInterval: 10 * time.Second,
		HeartbeatMaxIdle: 90 * time.Second,
		Retention:        24 * time.Hour,
		IdleRetention:    72 * time.Hour,
	}

	// 处理 Redis DB
	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr) // 忽略错误，默认为 0

	// 可选的时长覆盖
	if d, err := time.ParseDuration(os.Getenv("GRACE_WINDOW")); err == nil && d > 0 {
		cfg.GraceWindow = d
	}
	if d, err := time.ParseDuration(os.Getenv("COALESCE_INTERVAL")); err == nil && d > 0 {
		cfg.CoalesceInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("HEARTBEAT_MAX_IDLE")); err == nil && d > 0 {
		cfg.HeartbeatMaxIdle = d
	}
	if d, err := time.ParseDuration(os.Getenv("ROOM_RETENTION")); err == nil && d > 0 {
		cfg.Retention = d
	}
	if d, err := time.ParseDuration(os.Getenv("ROOM_IDLE_RETENTION")); err == nil && d > 0 {
		cfg.IdleRetention = d
	}

	// --- 设置其他默认值和进行必要检查 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gb:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	Hub            *hub.Hub
	HttpServer     *http.Server
	Migration      *service.HostMigrationCoordinator
	scheduler      *asynq.Scheduler
	redisClientOpt asynq.RedisClientOpt
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err = setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	participantRepo := gormpersistence.NewGormParticipantRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	membershipRepo := gormpersistence.NewGormMembershipRepository(db)
	eventRepo := gormpersistence.NewGormRoomEventRepository(db)
	uow := gormpersistence.NewGormUnitOfWork(db)
	lockRepo := redisstate.NewRedisLockRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化连接注册表
	reg := registry.New()

	// 6. 初始化 Services
	// 顺序有讲究: lifecycle → sync → migration，互相的回边用 setter 注入
	log.Info("Initializing services...")
	authService, err := service.NewAuthService(participantRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	lifecycleService := service.NewLifecycleService(roomRepo, membershipRepo, eventRepo, cfg.GraceWindow)
	syncEngine := service.NewSyncEngine(roomRepo, membershipRepo, lifecycleService, cfg.CoalesceInterval)
	migration := service.NewHostMigrationCoordinator(roomRepo, membershipRepo, lifecycleService, cfg.GraceWindow)
	syncEngine.SetHostWatcher(migration)
	roomService := service.NewRoomService(roomRepo, membershipRepo, lockRepo, reg, syncEngine, lifecycleService, migration)
	ingressService := service.NewIngressService(roomRepo, membershipRepo, syncEngine, uow)
	log.Info("Services initialized")

	// 7. 初始化 Hub 并接回生命周期广播
	log.Info("Initializing hub...")
	hubInstance := hub.NewHub(roomService, syncEngine, lifecycleService)
	lifecycleService.SetBroadcaster(hubInstance)
	log.Info("Hub initialized")

	// 8. 初始化外部凭证表
	validator, err := ParseServiceKeys(cfg.ServiceKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVICE_KEYS: %w", err)
	}
	log.Infof("Service credential table loaded (%d keys)", validator.Len())

	// 9. 初始化 Handlers
	log.Info("Initializing handlers...")
	authHandler := httpHandler.NewAuthHandler(authService)
	roomHandler := httpHandler.NewRoomHandler(roomService)
	statusHandler := httpHandler.NewStatusHandler(ingressService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, roomService)
	log.Info("Handlers initialized")

	// 10. 初始化 Worker Server
	log.Info("Initializing worker server...")
	workerServer := worker.NewWorkerServer(redisClientOpt, reg, syncEngine, roomRepo, membershipRepo, log)
	log.Info("Worker server initialized")

	// 11. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	// --- 应用其他中间件 ---
	router.Use(func(c *gin.Context) { /* CORS */
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000" // 开发默认
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Service-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	// --- 设置路由 ---
	api := router.Group("/api")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}
	roomRoutes := api.Group("/rooms").Use(middleware.Auth(cfg.JWTSecret))
	{
		roomRoutes.POST("", roomHandler.CreateRoom)
		roomRoutes.POST("/join", roomHandler.JoinRoom)
		roomRoutes.POST("/leave", roomHandler.LeaveRoom)
		roomRoutes.GET("/:code", roomHandler.GetRoom)
	}
	externalRoutes := api.Group("/external").Use(middleware.ServiceKey(validator))
	{
		externalRoutes.POST("/status", statusHandler.Report)
		externalRoutes.POST("/bulk-status", statusHandler.BulkReport)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/room/:code", websocketHandler.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "active_rooms": len(hubInstance.ActiveRoomIDs())})
	})
	log.Info("Router setup complete")

	// 12. 初始化 HTTP Server
	log.Info("Initializing HTTP server...")
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	log.Info("HTTP server initialized")

	// 13. 组装 App 对象
	log.Info("Assembling application...")
	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		Migration:      migration,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	// 启动 HTTP 服务器
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册 Reaper 的周期性清扫任务
func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	// 对账清扫: 每 5 分钟一次
	reconcilePayload, err := tasks.NewReconcileTask(a.Config.HeartbeatMaxIdle)
	if err != nil {
		a.Log.Errorf("Failed to create reconcile task payload: %v", err)
		return
	}
	reconcileTask := asynq.NewTask(tasks.TypeReaperReconcile, reconcilePayload)
	if entryID, err := scheduler.Register("@every 5m", reconcileTask, asynq.Queue("default")); err != nil {
		a.Log.Errorf("Could not register reconcile sweep task: %v", err)
	} else {
		a.Log.Infof("Reconcile sweep registered with schedule '@every 5m' (EntryID: %s)", entryID)
	}

	// 保留期清扫: 每小时一次，低优先级队列
	retentionPayload, err := tasks.NewRetentionTask(a.Config.Retention, a.Config.IdleRetention)
	if err != nil {
		a.Log.Errorf("Failed to create retention task payload: %v", err)
		return
	}
	retentionTask := asynq.NewTask(tasks.TypeReaperRetention, retentionPayload)
	if entryID, err := scheduler.Register("@every 1h", retentionTask, asynq.Queue("low")); err != nil {
		a.Log.Errorf("Could not register retention sweep task: %v", err)
	} else {
		a.Log.Infof("Retention sweep registered with schedule '@every 1h' (EntryID: %s)", entryID)
	}

	a.scheduler = scheduler
	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止调度器，后续不再产生清扫任务
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}

	// 2. 停止待定的主机迁移计时器
	if a.Migration != nil {
		a.Migration.Stop()
	}

	// 3. 停止 Hub 事件循环
	if a.Hub != nil {
		a.Hub.Stop()
	}

	// 4. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 5. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 6. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 7. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   clientIP,
			"method":      method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			// 区分状态码记录日志级别
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
