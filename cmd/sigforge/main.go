package main

import (
	"log"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"

	"github.com/sigforge/sigforge/api"
	"github.com/sigforge/sigforge/config"
	"github.com/sigforge/sigforge/storage"
	"github.com/sigforge/sigforge/storage/postgres"
)

func main() {
	cfg, err := config.ReadConfig("config")
	if err != nil {
		log.Fatalf("fail to read config, err: %v", err)
	}

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("fail to close asynq client, err: %v", err)
		}
	}()
	inspector := asynq.NewInspector(redisOpts)

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		log.Fatalf("fail to create statsd client, err: %v", err)
	}

	redisStorage, err := storage.NewRedisStorage(cfg)
	if err != nil {
		log.Fatalf("fail to connect to redis, err: %v", err)
	}
	blockStorage, err := storage.NewBlockStorage(cfg)
	if err != nil {
		log.Fatalf("fail to create block storage, err: %v", err)
	}
	db, err := postgres.NewPostgresBackend(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("fail to connect to database, err: %v", err)
	}

	server := api.NewServer(cfg, redisStorage, client, inspector, sdClient, blockStorage, db)
	if err := server.StartServer(); err != nil {
		log.Fatalf("fail to start server, err: %v", err)
	}
}
