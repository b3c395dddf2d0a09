package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/marketplace-api/internal/audit"
	"github.com/flicky/marketplace-api/internal/cache"
	"github.com/flicky/marketplace-api/internal/config"
	"github.com/flicky/marketplace-api/internal/handler"
	"github.com/flicky/marketplace-api/internal/media"
	"github.com/flicky/marketplace-api/internal/middleware"
	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
	"github.com/flicky/marketplace-api/internal/service"
	"github.com/flicky/marketplace-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	if cfg.DB.Migrate {
		if err := repository.Migrate(ctx, dbPool); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// MongoDB
	mongoCtx, mongoCancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	mongoCancel()
	if err != nil {
		log.Error("connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	timeline := audit.NewTimelineStore(mongoClient.Database(cfg.Mongo.Database))
	if err := timeline.EnsureIndexes(ctx); err != nil {
		log.Error("prepare timeline collection", "error", err)
		os.Exit(1)
	}
	log.Info("connected to MongoDB")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer consumeCh.Close()

	if err := worker.SetupRabbitMQ(consumeCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}

	publishCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ publish channel", "error", err)
		os.Exit(1)
	}
	defer publishCh.Close()
	log.Info("connected to RabbitMQ")

	// Repositories
	txManager := repository.NewTxManager(dbPool, repository.RetryPolicy{
		MaxAttempts:    cfg.Tx.MaxAttempts,
		AttemptTimeout: cfg.Tx.AttemptTimeout,
		BaseBackoff:    cfg.Tx.BaseBackoff,
	})
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	addressRepo := repository.NewAddressRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	historyRepo := repository.NewHistoryRepository(dbPool)

	productCache := cache.NewProductCache(redisClient, log)
	publisher := worker.NewPublisher(publishCh)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.AdminEmails...)
	productSvc := service.NewProductService(productRepo, txManager, productCache)
	cartSvc := service.NewCartService(cartRepo, productRepo, txManager)
	addressSvc := service.NewAddressService(addressRepo)
	orderSvc := service.NewOrderService(service.OrderServiceDeps{
		Orders:      orderRepo,
		Carts:       cartRepo,
		Products:    productRepo,
		Addresses:   addressRepo,
		Tx:          txManager,
		Policy:      model.TransitionPolicy{AllowCancelAfterConfirm: cfg.Orders.AllowCancelAfterConfirm},
		Publisher:   publisher,
		Cache:       productCache,
		Idempotency: cache.NewIdempotencyStore(redisClient, cfg.Orders.IdempotencyTTL),
		Timeline:    timeline,
		Log:         log.With("component", "orders"),
	})
	historySvc := service.NewHistoryService(orderRepo, historyRepo, txManager, publisher, log.With("component", "history"))

	var uploadSvc *service.UploadService
	if cfg.Cloudinary.URL != "" {
		uploader, err := media.NewCloudinaryUploader(cfg.Cloudinary.URL, cfg.Cloudinary.Folder)
		if err != nil {
			log.Error("init image host", "error", err)
			os.Exit(1)
		}
		uploadSvc = service.NewUploadService(uploader)
	} else {
		log.Warn("CLOUDINARY_URL not set, image uploads disabled")
		uploadSvc = service.NewUploadService(nil)
	}

	userAdminSvc := service.NewUserAdminService(userRepo, uploadSvc, log.With("component", "admin"))

	// Token verification
	verifiers := []middleware.TokenVerifier{middleware.NewJWTVerifier(cfg.JWT.Secret)}
	if cfg.Firebase.Enabled() {
		fv, err := middleware.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsJSON)
		if err != nil {
			log.Error("init firebase", "error", err)
			os.Exit(1)
		}
		verifiers = append(verifiers, fv)
		log.Info("firebase ID tokens enabled")
	}
	requireAuth := middleware.AuthMiddleware(verifiers...)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	productH := handler.NewProductHandler(productSvc, uploadSvc)
	cartH := handler.NewCartHandler(cartSvc)
	addressH := handler.NewAddressHandler(addressSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	historyH := handler.NewHistoryHandler(historySvc)
	adminH := handler.NewAdminHandler(userAdminSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn, mongoClient)

	// Worker
	eventWorker := worker.NewOrderEventWorker(consumeCh, cache.NewEventLedger(redisClient), timeline, productCache, log.With("component", "worker"))

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.GET("/me", requireAuth, authH.Me)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)

		selling := products.Group("", requireAuth, middleware.RequireRole(model.RoleSeller))
		selling.POST("", productH.Create)
		selling.PUT("/:id", productH.Update)
		selling.DELETE("/:id", productH.Delete)

		v1.POST("/uploads", requireAuth, middleware.RequireRole(model.RoleSeller), productH.UploadImage)

		buyer := v1.Group("", requireAuth, middleware.RequireRole(model.RoleBuyer))

		cart := buyer.Group("/cart")
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:productId", cartH.UpdateItem)
		cart.DELETE("/items/:productId", cartH.DeleteItem)
		cart.POST("/reconcile", cartH.Reconcile)

		addresses := buyer.Group("/addresses")
		addresses.GET("", addressH.List)
		addresses.POST("", addressH.Create)
		addresses.DELETE("/:id", addressH.Delete)

		orders := buyer.Group("/orders")
		orders.POST("", orderH.Checkout)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/cancel", orderH.CancelOrder)

		buyer.GET("/history", historyH.ListBuyer)

		v1.GET("/orders/:id/timeline", requireAuth, orderH.Timeline)

		seller := v1.Group("/seller", requireAuth, middleware.RequireRole(model.RoleSeller))
		seller.GET("/products", productH.ListMine)
		seller.GET("/orders", orderH.ListSellerOrders)
		seller.POST("/orders/:id/confirm", orderH.Confirm)
		seller.POST("/orders/:id/cancel", orderH.SellerCancel)
		seller.POST("/history/clear", historyH.Clear)
		seller.GET("/history", historyH.ListSeller)

		admin := v1.Group("/admin", requireAuth, middleware.RequireRole(model.RoleAdmin))
		admin.GET("/users", adminH.ListUsers)
		admin.PUT("/users/:id/role", adminH.ChangeRole)
		admin.DELETE("/users/:id", adminH.DeleteUser)
		admin.PUT("/profile/image", adminH.UploadProfileImage)
	}

	if err := eventWorker.Start(ctx); err != nil {
		log.Error("start order event worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	eventWorker.Stop()
	cancel()
	log.Info("server stopped")
}
