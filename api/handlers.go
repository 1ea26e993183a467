package api

import (
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/sigforge/sigforge/internal/jose"
	"github.com/sigforge/sigforge/internal/jwt"
	"github.com/sigforge/sigforge/internal/keymgr"
	"github.com/sigforge/sigforge/internal/password"
	"github.com/sigforge/sigforge/internal/tasks"
	"github.com/sigforge/sigforge/internal/types"
	"github.com/sigforge/sigforge/sigcodec"
)

func (s *Server) RegisterUser(c echo.Context) error {
	var req types.UserAuthDto
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := types.Validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	hash, err := password.HashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("fail to hash password, err: %w", err)
	}

	user, err := s.db.InsertUser(c.Request().Context(), req.Username, hash)
	if err != nil {
		s.logger.Errorf("fail to insert user, err: %v", err)
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
	}

	return c.JSON(http.StatusCreated, user)
}

func (s *Server) LoginUser(c echo.Context) error {
	var req types.UserAuthDto
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := types.Validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	user, err := s.db.FindUserByName(c.Request().Context(), req.Username)
	if err != nil || !password.CheckPassword(req.Password, user.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := jwt.GenerateJWT(user.ID, s.cfg.Auth.JwtSecret)
	if err != nil {
		return fmt.Errorf("fail to generate token, err: %w", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// ConvertDERToRaw converts a DER-encoded ECDSA signature to the raw
// fixed-width form for the named curve. All parse failures map to one
// 400 response.
func (s *Server) ConvertDERToRaw(c echo.Context) error {
	var req types.ConvertRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("convert.der_to_raw", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	curve, err := jose.CurveByName(req.Curve)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	der, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature must be base64 encoded"})
	}

	raw, err := sigcodec.DERToRaw(&ecdsa.PublicKey{Curve: curve}, der)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid DER signature"})
	}

	return c.JSON(http.StatusOK, types.ConvertResponse{
		Curve:     req.Curve,
		Signature: base64.StdEncoding.EncodeToString(raw),
	})
}

// ConvertRawToDER is the inverse endpoint.
func (s *Server) ConvertRawToDER(c echo.Context) error {
	var req types.ConvertRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("convert.raw_to_der", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	curve, err := jose.CurveByName(req.Curve)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	raw, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature must be base64 encoded"})
	}
	if len(raw) != 2*sigcodec.CurveByteSize(curve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature has wrong length for curve"})
	}

	der, err := sigcodec.RawToDER(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid raw signature"})
	}

	return c.JSON(http.StatusOK, types.ConvertResponse{
		Curve:     req.Curve,
		Signature: base64.StdEncoding.EncodeToString(der),
	})
}

func (s *Server) CreateKey(c echo.Context) error {
	var req types.KeyCreateRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("key.create", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	} else {
		result, err := s.redis.Get(c.Request().Context(), req.SessionID)
		if err == nil && result != "" {
			return c.JSON(http.StatusOK, echo.Map{"task_id": result})
		}
	}

	task, err := req.Task()
	if err != nil {
		return fmt.Errorf("fail to create task, err: %w", err)
	}
	ti, err := s.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME))
	if err != nil {
		return fmt.Errorf("fail to enqueue task, err: %w", err)
	}

	if err := s.redis.Set(c.Request().Context(), req.SessionID, ti.ID, 5*time.Minute); err != nil {
		s.logger.Errorf("fail to set session, err: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"task_id": ti.ID})
}

func (s *Server) ListKeys(c echo.Context) error {
	keys, err := s.db.GetAllSigningKeys(c.Request().Context())
	if err != nil {
		return fmt.Errorf("fail to list keys, err: %w", err)
	}

	return c.JSON(http.StatusOK, keys)
}

func (s *Server) GetKey(c echo.Context) error {
	keyID := c.Param("keyId")
	if keyID == "" {
		return fmt.Errorf("key id is required")
	}

	key, err := s.db.GetSigningKey(c.Request().Context(), keyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
	}

	return c.JSON(http.StatusOK, key)
}

func (s *Server) GetKeyJWK(c echo.Context) error {
	keyID := c.Param("keyId")
	if keyID == "" {
		return fmt.Errorf("key id is required")
	}

	if jwk, err := s.redis.GetJWKCacheItem(c.Request().Context(), keyID); err == nil {
		return c.JSON(http.StatusOK, jwk)
	}

	key, err := s.db.GetSigningKey(c.Request().Context(), keyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
	}
	jwk, err := key.JWK()
	if err != nil {
		return fmt.Errorf("fail to decode stored jwk, err: %w", err)
	}
	if err := s.redis.SetJWKCacheItem(c.Request().Context(), keyID, jwk); err != nil {
		s.logger.Errorf("fail to cache jwk, err: %v", err)
	}

	return c.JSON(http.StatusOK, jwk)
}

func (s *Server) SignPayload(c echo.Context) error {
	var req types.KeySignRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("key.sign", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	} else {
		result, err := s.redis.Get(c.Request().Context(), req.Key())
		if err == nil && result != "" {
			return c.JSON(http.StatusOK, echo.Map{"task_id": result})
		}
	}

	task, err := req.Task()
	if err != nil {
		return fmt.Errorf("fail to create task, err: %w", err)
	}
	ti, err := s.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME))
	if err != nil {
		return fmt.Errorf("fail to enqueue task, err: %w", err)
	}

	if err := s.redis.Set(c.Request().Context(), req.Key(), ti.ID, 5*time.Minute); err != nil {
		s.logger.Errorf("fail to set session, err: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"task_id": ti.ID})
}

// SignPayloadDirect signs synchronously in the request, for callers
// that cannot poll a task result.
func (s *Server) SignPayloadDirect(c echo.Context) error {
	var req types.KeySignRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("key.sign.direct", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	key, err := s.db.GetSigningKey(c.Request().Context(), req.KeyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
	}

	claims, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payload must be base64 encoded"})
	}

	result, err := s.keyMgr.Sign(key, claims)
	if err != nil {
		return fmt.Errorf("fail to sign payload, err: %w", err)
	}

	return c.JSON(http.StatusOK, result)
}

// GetKeySignResult is a handler to get the sign task response
func (s *Server) GetKeySignResult(c echo.Context) error {
	taskID := c.Param("taskId")
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}
	result, err := tasks.GetTaskResult(s.inspector, taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskInProgress) {
			return c.JSON(http.StatusOK, "Task is still in progress")
		}
		return err
	}

	return c.JSONBlob(http.StatusOK, []byte(result))
}

func (s *Server) VerifyToken(c echo.Context) error {
	var req types.TokenVerifyRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := s.sdClient.Count("token.verify", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	var pub *ecdsa.PublicKey
	if jwk, err := s.redis.GetJWKCacheItem(c.Request().Context(), req.KeyID); err == nil {
		pub, err = jose.JWKToPublicKey(*jwk)
		if err != nil {
			return fmt.Errorf("fail to decode cached jwk, err: %w", err)
		}
	} else {
		key, err := s.db.GetSigningKey(c.Request().Context(), req.KeyID)
		if err != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
		}
		jwk, err := key.JWK()
		if err != nil {
			return fmt.Errorf("fail to decode stored jwk, err: %w", err)
		}
		pub, err = jose.JWKToPublicKey(jwk)
		if err != nil {
			return fmt.Errorf("fail to decode stored jwk, err: %w", err)
		}
	}

	payload, err := jose.VerifyCompact(req.Token, pub)
	if err != nil {
		return c.JSON(http.StatusOK, types.TokenVerifyResponse{Valid: false})
	}

	return c.JSON(http.StatusOK, types.TokenVerifyResponse{
		Valid:   true,
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
}

// DeleteKey removes the key record, its cached JWK and its backup.
func (s *Server) DeleteKey(c echo.Context) error {
	keyID := c.Param("keyId")
	if keyID == "" {
		return fmt.Errorf("key id is required")
	}
	if err := s.sdClient.Count("key.delete", 1, nil, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}

	key, err := s.db.GetSigningKey(c.Request().Context(), keyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
	}

	if err := s.db.DeleteSigningKey(c.Request().Context(), keyID); err != nil {
		return fmt.Errorf("fail to delete key, err: %w", err)
	}
	if err := s.redis.DeleteJWKCacheItem(c.Request().Context(), keyID); err != nil {
		s.logger.Errorf("fail to drop jwk cache item, err: %v", err)
	}
	if err := s.blockStorage.DeleteFile(keymgr.BackupFileName(key)); err != nil {
		s.logger.Errorf("fail to delete backup, err: %v", err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) DownloadKeyBackup(c echo.Context) error {
	keyID := c.Param("keyId")
	if keyID == "" {
		return fmt.Errorf("key id is required")
	}

	key, err := s.db.GetSigningKey(c.Request().Context(), keyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
	}

	content, err := s.blockStorage.GetFile(keymgr.BackupFileName(key))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "backup not found"})
	}

	return c.Blob(http.StatusOK, "application/octet-stream", content)
}
