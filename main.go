package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filesmanager/internal/api"
	"filesmanager/internal/auth"
	"filesmanager/internal/blob"
	"filesmanager/internal/config"
	"filesmanager/internal/redis"
	"filesmanager/internal/service/files"
	"filesmanager/internal/service/users"
	"filesmanager/internal/storage"
	"filesmanager/internal/worker"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("FILES_MANAGER_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.DBType
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	// Create necessary tables: users, files
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	blobs, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("open blob storage: %v", err)
	}

	userStore := storage.NewUserStore(db, dbType)
	fileStore := storage.NewFileStore(db, dbType)

	queue := worker.NewRedisQueue(rdb)
	producer := worker.NewProducer(queue, cfg.BasicConfig.ProducerBuffer)

	usersService := users.NewService(userStore, cfg.BasicConfig.BcryptCost)
	filesService := files.NewService(fileStore, blobs, producer)
	authService := auth.NewService(rdb, time.Duration(cfg.BasicConfig.SessionTTLHours)*time.Hour)

	workersDone := make(chan struct{})
	if cfg.BasicConfig.EmbeddedWorkers {
		processor := worker.NewProcessor(fileStore, blobs, worker.NewImageResizer())
		manager := worker.NewManager(queue, processor, worker.NewRedisNotifier(rdb), worker.DispatcherConfigFrom(cfg.BasicConfig))
		go func() {
			defer close(workersDone)
			if err := manager.Run(ctx); err != nil {
				log.Printf("thumbnail workers stopped: %v", err)
			}
		}()
	} else {
		close(workersDone)
		// thumbnails are built by cmd/worker, report what it publishes
		if err := worker.Listen(ctx, rdb, worker.LogEvents); err != nil {
			log.Printf("thumbnail event listener disabled: %v", err)
		}
	}

	handlers := api.NewHandler(usersService, filesService, authService, rdb, api.PingFunc(db.PingContext))
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":5000"
	}
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}

	// requests are drained, flush pending jobs before the workers go away
	producer.Close()
	<-workersDone
}
