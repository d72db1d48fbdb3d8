package api

import (
	"github.com/gin-gonic/gin"

	"github.com/arlen/newscalm/internal/api/handler"
	"github.com/arlen/newscalm/internal/api/middleware"
	"github.com/arlen/newscalm/internal/service"
)

// RouterConfig carries the router's own knobs.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	detoxService *service.DetoxService,
	memeService *service.MemeService,
	limiter middleware.Limiter,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	detoxHandler := handler.NewDetoxHandler(detoxService)
	memeHandler := handler.NewMemeHandler(memeService)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		detox := v1.Group("/detox")
		{
			// The process endpoint's own limit lives in the service next to
			// the dedup check; only the meme endpoint is limited here.
			detox.POST("/process", detoxHandler.Process)
			detox.GET("/status/:id", detoxHandler.Status)
			detox.POST("/:id/retry", detoxHandler.Retry)
			detox.GET("/history", detoxHandler.History)
		}

		memes := v1.Group("/memes")
		{
			memes.POST("/generate", middleware.RateLimit(limiter, "memes"), memeHandler.Generate)
			memes.GET("/status/:task_id", memeHandler.Status)
		}
	}

	return r
}
