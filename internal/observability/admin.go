package observability

import (
	"net/http"
	"time"

	"github.com/danmuck/nodectl/internal/builder"
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const adminVersion = "0.1.0"

// AdminSource is the read-only view the admin surface serves.
type AdminSource interface {
	Toc() []string
	Signals(path string) ([]signal.Info, error)
	Types() []builder.Info
	Ready() bool
}

// Admin is the HTTP side door for health, metrics and tree introspection.
type Admin struct {
	ID      string
	Started time.Time

	src    AdminSource
	router *gin.Engine
}

func NewAdmin(id string, src AdminSource, corsOrigins []string) *Admin {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observeAdmin(id, ComponentLogger("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{ID: id, Started: time.Now(), src: src, router: r}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Started).String(),
			"node":    a.ID,
			"version": adminVersion,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/ready", func(c *gin.Context) {
		ready := a.src.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(a.Started).String(),
			"node":    a.ID,
			"version": adminVersion,
		})
	})

	a.router.GET("/toc", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"paths": a.src.Toc()})
	})

	a.router.GET("/types", func(c *gin.Context) {
		types := a.src.Types()
		out := make([]gin.H, 0, len(types))
		for _, info := range types {
			out = append(out, gin.H{
				"type":         info.Type,
				"description":  info.Description,
				"capabilities": info.Capabilities,
			})
		}
		c.JSON(http.StatusOK, gin.H{"types": out})
	})

	a.router.GET("/signals", func(c *gin.Context) {
		path := c.Query("path")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter required"})
			return
		}
		infos, err := a.src.Signals(path)
		if err != nil {
			c.JSON(statusFor(err), gin.H{
				"error": nodeerr.Message(err),
				"kind":  string(nodeerr.KindOf(err)),
			})
			return
		}
		out := make([]gin.H, 0, len(infos))
		for _, info := range infos {
			out = append(out, gin.H{"name": info.Name, "description": info.Description})
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "signals": out})
	})
}

func statusFor(err error) int {
	switch nodeerr.KindOf(err) {
	case nodeerr.InvalidPath:
		return http.StatusNotFound
	case nodeerr.BrokenLink:
		return http.StatusConflict
	case nodeerr.BadArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
