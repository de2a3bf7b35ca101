package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/controllers"
	"github.com/kcbuddy/kcbuddy/middleware"
	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

// Controllers groups the handlers the router mounts.
type Controllers struct {
	Auth        *controllers.AuthController
	Kids        *controllers.KidController
	Chores      *controllers.ChoreController
	Submissions *controllers.SubmissionController
	Goals       *controllers.GoalController
	Storage     *controllers.StorageController
}

// Limiters are the request budgets enforced in middleware.
type Limiters struct {
	LoginPerIP    utils.Limiter
	RegisterPerIP utils.Limiter
	UploadPerKid  utils.Limiter
}

// Options configures SetupRouter.
type Options struct {
	GinMode        string
	AllowedOrigins []string
	UploadDir      string
	// AccessLog receives request and panic logs; falls back to Log when nil.
	AccessLog *zap.Logger
	Log       *zap.Logger
	Issuer    *utils.TokenIssuer
	Limiters  Limiters
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(opts Options, c Controllers) *gin.Engine {
	switch strings.ToLower(opts.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = opts.Log
	}
	r.Use(ginzap.Ginzap(accessLog, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(accessLog, true))

	corsCfg := corsConfig(opts)
	r.Use(cors.New(corsCfg))

	// Uploaded photos are user content: never sniffed, never executed
	uploads := r.Group("/uploads", func(ctx *gin.Context) {
		ctx.Header("X-Content-Type-Options", "nosniff")
		ctx.Header("Content-Security-Policy", "default-src 'none'; img-src 'self'; sandbox")
		ctx.Next()
	})
	uploads.Static("/", opts.UploadDir)

	api := r.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	log := opts.Log
	auth := middleware.RequireAuth(opts.Issuer)
	parentOnly := middleware.RequireRole(models.RoleParent)
	kidOnly := middleware.RequireRole(models.RoleKid)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", middleware.RateLimit(opts.Limiters.RegisterPerIP, middleware.ByIP, log), c.Auth.Register)
	authGroup.POST("/code", middleware.RateLimit(opts.Limiters.LoginPerIP, middleware.ByIP, log), c.Auth.CodeLogin)

	kids := api.Group("/kids", auth, parentOnly)
	kids.GET("", c.Kids.ListKids)
	kids.POST("", c.Kids.CreateKid)
	kids.PUT("/:id", c.Kids.UpdateKid)

	chores := api.Group("/chores", auth)
	chores.GET("", c.Chores.ListChores)
	chores.POST("", parentOnly, c.Chores.CreateChore)
	chores.PUT("/:id", parentOnly, c.Chores.UpdateChore)
	chores.PATCH("/:id/status", parentOnly, c.Chores.SetChoreStatus)

	submissions := api.Group("/submissions", auth)
	submissions.GET("", c.Submissions.ListSubmissions)
	submissions.POST("", kidOnly, c.Submissions.CreateSubmission)
	submissions.POST("/:id/approve", parentOnly, c.Submissions.DecideSubmission)

	goals := api.Group("/goals", auth)
	goals.GET("/me", kidOnly, c.Goals.MyGoal)
	goals.PUT("/me", kidOnly, c.Goals.SetMyGoal)
	goals.GET("/family", parentOnly, c.Goals.FamilyGoals)

	store := api.Group("/storage", auth, kidOnly)
	store.POST("/upload", middleware.RateLimit(opts.Limiters.UploadPerKid, middleware.ByUser, log), c.Storage.Upload)
	store.POST("/presign", c.Storage.Presign)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, utils.ErrNotFound.Code, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, utils.ErrNotFound.Code, "not found")
	})

	return r
}

// corsConfig allows every origin only when "*" is configured, or when nothing is
// configured outside release mode. Release mode without origins rejects
// cross-origin requests.
func corsConfig(opts Options) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origins := opts.AllowedOrigins
	switch {
	case len(origins) == 1 && origins[0] == "*":
		cfg.AllowAllOrigins = true
	case len(origins) > 0:
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	case gin.Mode() != gin.ReleaseMode:
		cfg.AllowAllOrigins = true
	default:
		if opts.Log != nil {
			opts.Log.Warn("CORS_ALLOWED_ORIGINS is empty in release mode, cross-origin requests are rejected")
		}
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cfg
}
