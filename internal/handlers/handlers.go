package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/chat"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/middleware"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/service"
)

// ObjectStore is the artifact storage the API needs, including its health
// probe.
type ObjectStore interface {
	service.ArtifactStore
	Health(ctx context.Context) error
}

// Hub wakes long-pollers. chat.Hub satisfies it.
type Hub interface {
	service.ChatPublisher
	chat.Waker
}

// Deps are the connections NewHandlerSet wires the services from.
type Deps struct {
	Mongo   *database.Mongo
	Cache   *redis.Client
	Store   ObjectStore
	Hub     Hub
	Jobs    service.JobQueue
	Metrics *metrics.Metrics
}

type HandlerSet struct {
	log   zerolog.Logger
	cfg   *config.AppConfig
	deps  Deps
	users *repository.UserRepository
	now   func() time.Time

	authService    *service.AuthService
	userService    *service.UserService
	wordService    *service.WordService
	penaltyService *service.PenaltyService
	groupService   *service.GroupService
	chatService    *service.ChatService
	adminService   *service.AdminService
	updateService  *service.UpdateService
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	db := deps.Mongo.DB
	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	penaltyRepo := repository.NewPenaltyRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	updateRepo := repository.NewUpdateRepository(db)

	poller := chat.NewPoller(messageRepo, deps.Hub, cfg.Chat.PollInterval, cfg.Chat.HistoryLimit)
	baseURL := cfg.Site.PublicBaseURL

	return HandlerSet{
		log:   log,
		cfg:   cfg,
		deps:  deps,
		users: userRepo,
		now:   time.Now,

		authService:    service.NewAuthService(userRepo, cfg, log),
		userService:    service.NewUserService(userRepo, groupRepo, deps.Jobs, log),
		wordService:    service.NewWordService(userRepo, log),
		penaltyService: service.NewPenaltyService(deps.Mongo, userRepo, groupRepo, penaltyRepo, messageRepo, deps.Hub, deps.Metrics, log),
		groupService:   service.NewGroupService(deps.Mongo, userRepo, groupRepo, penaltyRepo, messageRepo, deps.Hub, baseURL, log),
		chatService:    service.NewChatService(userRepo, groupRepo, messageRepo, deps.Hub, poller, deps.Jobs, cfg.Chat, deps.Metrics, log),
		adminService:   service.NewAdminService(deps.Mongo, userRepo, groupRepo, penaltyRepo, messageRepo, deps.Jobs, cfg.Security, log),
		updateService:  service.NewUpdateService(updateRepo, deps.Store, cfg.Storage.MaxUpload, baseURL, log),
	}
}

func (h HandlerSet) Register(engine *gin.Engine) {
	if h.deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.deps.Metrics.Handler()))
	}
	engine.GET("/download/app-release.apk", h.DownloadRelease)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{Success: false, Code: "not_found", Message: "Маршрут не найден"})
	})

	api := engine.Group("/api")
	api.GET("/health", h.Health)

	auth := api.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)

	requireUser := middleware.Auth(h.cfg.Security.JWTSecret, h.users)
	auth.GET("/me", requireUser, h.Me)

	user := api.Group("/user", requireUser)
	user.GET("/profile", h.GetProfile)
	user.PUT("/profile", h.UpdateProfile)
	user.PUT("/settings", h.UpdateSettings)
	user.PUT("/push-token", h.SavePushToken)
	user.PUT("/ping", h.Ping)

	words := api.Group("/words", requireUser)
	words.GET("", h.ListWords)
	words.POST("", h.AddWord)
	words.DELETE("/:word", h.RemoveWord)

	penalties := api.Group("/penalties", requireUser)
	penalties.POST("/add", h.AddPenalty)
	penalties.GET("/stats", h.PenaltyStats)
	penalties.GET("/history", h.PenaltyHistory)
	penalties.POST("/:id/forgive", h.ForgivePenalty)

	groups := api.Group("/groups", requireUser)
	groups.GET("", h.ListGroups)
	groups.POST("/create", h.CreateGroup)
	groups.POST("/join", h.JoinGroup)
	groups.GET("/:id", h.GetGroup)
	groups.GET("/:id/stats", h.GroupStats)
	groups.PUT("/:id/settings", h.UpdateGroupSettings)
	groups.POST("/:id/transfer", h.TransferOwnership)
	groups.GET("/:id/chat", h.ListMessages)
	groups.GET("/:id/chat/poll", h.PollMessages)
	groups.POST("/:id/chat", h.SendMessage)
	groups.DELETE("/:id", h.DeleteGroup)
	groups.DELETE("/:id/leave", h.LeaveGroup)

	api.GET("/updates/check", h.CheckUpdate)

	admin := api.Group("/admin")
	admin.POST("/login", h.AdminLogin)

	protected := admin.Group("", middleware.RequireAdmin(h.cfg.Security.AdminSecret))
	protected.GET("/stats", h.AdminStats)
	protected.GET("/users", h.AdminListUsers)
	protected.POST("/users/:id/premium", h.AdminGrantPremium)
	protected.DELETE("/users/:id/premium", h.AdminRevokePremium)
	protected.POST("/users/:id/clear-penalties", h.AdminClearPenalties)
	protected.DELETE("/users/:id", h.AdminDeleteUser)
	protected.POST("/push/test", h.AdminPushTest)
	protected.GET("/updates", h.AdminListUpdates)
	protected.POST("/updates", h.AdminUploadUpdate)
	protected.DELETE("/updates/:id", h.AdminDeleteUpdate)
}
