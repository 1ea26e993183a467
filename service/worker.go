package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sigforge/sigforge/config"
	"github.com/sigforge/sigforge/contexthelper"
	"github.com/sigforge/sigforge/internal/keymgr"
	"github.com/sigforge/sigforge/internal/tasks"
	"github.com/sigforge/sigforge/storage"
)

type WorkerService struct {
	cfg          config.Config
	redis        *storage.RedisStorage
	db           storage.DatabaseStorage
	keyMgr       *keymgr.KeyManager
	logger       *logrus.Logger
	queueClient  *asynq.Client
	sdClient     *statsd.Client
	blockStorage *storage.BlockStorage
}

// NewWorker creates a new worker service
func NewWorker(cfg config.Config,
	db storage.DatabaseStorage,
	queueClient *asynq.Client,
	sdClient *statsd.Client,
	blockStorage *storage.BlockStorage) (*WorkerService, error) {
	redis, err := storage.NewRedisStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage.NewRedisStorage failed: %w", err)
	}
	keyMgr, err := keymgr.NewKeyManager(cfg.Encryption.Secret)
	if err != nil {
		return nil, fmt.Errorf("keymgr.NewKeyManager failed: %w", err)
	}

	return &WorkerService{
		cfg:          cfg,
		redis:        redis,
		db:           db,
		keyMgr:       keyMgr,
		logger:       logrus.WithField("service", "worker").Logger,
		queueClient:  queueClient,
		sdClient:     sdClient,
		blockStorage: blockStorage,
	}, nil
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func (s *WorkerService) HandleKeyGeneration(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.key.create.latency", time.Now(), []string{})

	var payload tasks.KeyGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	s.logger.WithFields(logrus.Fields{
		"name":      payload.Name,
		"algorithm": payload.Algorithm,
		"session":   payload.SessionID,
	}).Info("Generating signing key")
	s.incCounter("worker.key.create", []string{"algorithm:" + payload.Algorithm})

	key, err := s.keyMgr.Generate(payload.Name, payload.Algorithm)
	if err != nil {
		// A bad algorithm never becomes valid on retry.
		return fmt.Errorf("keymgr.Generate failed: %v: %w", err, asynq.SkipRetry)
	}

	if err := s.db.InsertSigningKey(ctx, key); err != nil {
		return fmt.Errorf("db.InsertSigningKey failed: %w", err)
	}

	jwk, err := key.JWK()
	if err == nil {
		if err := s.redis.SetJWKCacheItem(ctx, key.ID, jwk); err != nil {
			s.logger.Errorf("fail to cache jwk, err: %v", err)
		}
	}

	if err := s.enqueueBackup(key.ID); err != nil {
		s.logger.Errorf("fail to enqueue backup task, err: %v", err)
	}

	resultBytes, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := t.ResultWriter().Write(resultBytes); err != nil {
		return fmt.Errorf("t.ResultWriter.Write failed: %v: %w", err, asynq.SkipRetry)
	}

	return nil
}

func (s *WorkerService) HandleKeySign(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.key.sign.latency", time.Now(), []string{})

	var payload tasks.KeySignPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	s.logger.WithFields(logrus.Fields{
		"key_id":  payload.KeyID,
		"session": payload.SessionID,
	}).Info("Signing payload")
	s.incCounter("worker.key.sign", []string{})

	key, err := s.db.GetSigningKey(ctx, payload.KeyID)
	if err != nil {
		return fmt.Errorf("db.GetSigningKey failed: %v: %w", err, asynq.SkipRetry)
	}

	claims, err := base64.StdEncoding.DecodeString(payload.Payload)
	if err != nil {
		return fmt.Errorf("fail to decode payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := s.keyMgr.Sign(key, claims)
	if err != nil {
		_ = s.sdClient.Count("worker.key.sign.error", 1, nil, 1)
		s.logger.Errorf("keymgr.Sign failed: %v", err)
		return fmt.Errorf("keymgr.Sign failed: %v: %w", err, asynq.SkipRetry)
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := t.ResultWriter().Write(resultBytes); err != nil {
		return fmt.Errorf("t.ResultWriter.Write failed: %v: %w", err, asynq.SkipRetry)
	}

	return nil
}

func (s *WorkerService) HandleKeyBackup(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.key.backup.latency", time.Now(), []string{})

	var payload tasks.KeyBackupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	key, err := s.db.GetSigningKey(ctx, payload.KeyID)
	if err != nil {
		return fmt.Errorf("db.GetSigningKey failed: %w", err)
	}

	bundle, err := s.keyMgr.BackupBundle(key)
	if err != nil {
		return fmt.Errorf("keymgr.BackupBundle failed: %v: %w", err, asynq.SkipRetry)
	}

	fileName := keymgr.BackupFileName(key)
	if err := s.blockStorage.UploadFileWithRetry(bundle, fileName, 3); err != nil {
		return fmt.Errorf("blockStorage.UploadFileWithRetry failed: %w", err)
	}
	s.incCounter("worker.key.backup", []string{})

	s.logger.WithFields(logrus.Fields{
		"key_id": key.ID,
		"file":   fileName,
	}).Info("Key backup uploaded")

	return nil
}

func (s *WorkerService) enqueueBackup(keyID string) error {
	buf, err := json.Marshal(tasks.KeyBackupPayload{KeyID: keyID})
	if err != nil {
		return err
	}
	_, err = s.queueClient.Enqueue(asynq.NewTask(tasks.TypeKeyBackup, buf),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(5*time.Minute),
		asynq.Queue(tasks.BACKUP_QUEUE_NAME))
	return err
}
