package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/sigforge/sigforge/config"
	"github.com/sigforge/sigforge/internal/keymgr"
	"github.com/sigforge/sigforge/storage"
)

type Server struct {
	cfg          config.Config
	redis        *storage.RedisStorage
	client       *asynq.Client
	inspector    *asynq.Inspector
	sdClient     *statsd.Client
	blockStorage *storage.BlockStorage
	db           storage.DatabaseStorage
	keyMgr       *keymgr.KeyManager
	logger       *logrus.Logger
}

// NewServer returns a new server.
func NewServer(cfg config.Config,
	redis *storage.RedisStorage,
	client *asynq.Client,
	inspector *asynq.Inspector,
	sdClient *statsd.Client,
	blockStorage *storage.BlockStorage,
	db storage.DatabaseStorage) *Server {
	logger := logrus.WithField("service", "api").Logger

	keyMgr, err := keymgr.NewKeyManager(cfg.Encryption.Secret)
	if err != nil {
		logger.Fatalf("Failed to initialize key manager: %v", err)
	}

	return &Server{
		cfg:          cfg,
		redis:        redis,
		client:       client,
		inspector:    inspector,
		sdClient:     sdClient,
		blockStorage: blockStorage,
		db:           db,
		keyMgr:       keyMgr,
		logger:       logger,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.Logger.SetLevel(log.DEBUG)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.GET("/ping", s.Ping)
	e.POST("/user/register", s.RegisterUser)
	e.POST("/user/login", s.LoginUser)

	e.POST("/convert/der-to-raw", s.ConvertDERToRaw)
	e.POST("/convert/raw-to-der", s.ConvertRawToDER)
	e.POST("/token/verify", s.VerifyToken)

	grp := e.Group("/key")
	grp.Use(s.userAuthMiddleware)
	grp.POST("/create", s.CreateKey)
	grp.GET("/list", s.ListKeys)
	grp.GET("/get/:keyId", s.GetKey)
	grp.DELETE("/delete/:keyId", s.DeleteKey)
	grp.GET("/jwk/:keyId", s.GetKeyJWK)
	grp.POST("/sign", s.SignPayload)
	grp.POST("/sign/direct", s.SignPayloadDirect)
	grp.GET("/sign/response/:taskId", s.GetKeySignResult)
	grp.GET("/backup/:keyId", s.DownloadKeyBackup)

	return e.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "Sigforge is running")
}
