package main

import (
	"log"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sigforge/sigforge/config"
	"github.com/sigforge/sigforge/internal/logging"
	"github.com/sigforge/sigforge/internal/tasks"
	"github.com/sigforge/sigforge/service"
	"github.com/sigforge/sigforge/storage"
	"github.com/sigforge/sigforge/storage/postgres"
)

func main() {
	cfg, err := config.ReadConfig("config")
	if err != nil {
		log.Fatalf("fail to read config, err: %v", err)
	}

	redisAddr := cfg.Redis.Host + ":" + cfg.Redis.Port
	redisOpts := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QUEUE_NAME:        10,
				tasks.BACKUP_QUEUE_NAME: 100,
			},
		},
	)

	logging.Logger.WithFields(logrus.Fields{
		"redis": redisAddr,
	}).Info("Starting worker")

	client := asynq.NewClient(redisOpts)
	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		log.Fatalf("fail to create statsd client, err: %v", err)
	}
	blockStorage, err := storage.NewBlockStorage(cfg)
	if err != nil {
		log.Fatalf("fail to create block storage, err: %v", err)
	}
	db, err := postgres.NewPostgresBackend(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("fail to connect to database, err: %v", err)
	}

	workerService, err := service.NewWorker(cfg, db, client, sdClient, blockStorage)
	if err != nil {
		log.Fatalf("fail to create worker service, err: %v", err)
	}

	// mux maps a task type to a handler
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeKeyGeneration, workerService.HandleKeyGeneration)
	mux.HandleFunc(tasks.TypeKeySign, workerService.HandleKeySign)
	mux.HandleFunc(tasks.TypeKeyBackup, workerService.HandleKeyBackup)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run worker: %v", err)
	}
}
