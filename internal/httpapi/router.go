package httpapi

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// RouterDeps wires the handler and the shared API key into the routes.
type RouterDeps struct {
	Handler *Handler
	APIKey  string
}

func RegisterRoutes(group *gin.RouterGroup, deps RouterDeps) {
	group.GET("/health", deps.Handler.Health)

	guarded := group.Group("")
	guarded.Use(APIKey(deps.APIKey))
	guarded.POST("/ingest", deps.Handler.Ingest)
	guarded.POST("/chat", deps.Handler.Chat)
}

// Middlewares returns the global middlewares of the API.
func Middlewares(corsOrigins []string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		CORS(corsOrigins),
		gzip.Gzip(gzip.DefaultCompression),
	}
}

// NewEngine builds a standalone engine with recovery, the global middlewares and the routes.
func NewEngine(deps RouterDeps, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(Middlewares(corsOrigins)...)
	RegisterRoutes(&engine.RouterGroup, deps)
	return engine
}
