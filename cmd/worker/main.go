// Command worker consumes thumbnail jobs from redis without serving HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"filesmanager/internal/blob"
	"filesmanager/internal/config"
	"filesmanager/internal/redis"
	"filesmanager/internal/storage"
	"filesmanager/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("FILES_MANAGER_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.DBType
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
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

	processor := worker.NewProcessor(storage.NewFileStore(db, dbType), blobs, worker.NewImageResizer())
	manager := worker.NewManager(worker.NewRedisQueue(rdb), processor, worker.NewRedisNotifier(rdb), worker.DispatcherConfigFrom(cfg.BasicConfig))

	log.Printf("thumbnail worker started (db %s, storage %s)", dbType, cfg.Storage.Backend)
	if err := manager.Run(ctx); err != nil {
		log.Fatalf("thumbnail worker: %v", err)
	}
	totals := manager.Totals()
	log.Printf("thumbnail worker stopped: %d completed, %d failed", totals[worker.StateCompleted], totals[worker.StateFailed])
}
