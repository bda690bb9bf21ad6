package server

import (
	"autoapply/internal/cache"
	"autoapply/internal/core/autoapply"
	"autoapply/internal/core/queue"
	"autoapply/internal/core/tierscraper"
	"autoapply/internal/health"
	"autoapply/internal/platform/redis"
	"autoapply/internal/proxy"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Queue     *queue.Service
	Tier      *tierscraper.Service
	Cache     *cache.Service
	Proxy     *proxy.Service
	AutoApply *autoapply.Service
	Redis     *redis.Service
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	// Health endpoints
	healthHandler := health.NewHealthHandler(d.Redis)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	queueHandler := queue.NewHandler(d.Queue)
	api.Post("/scraper/:platform/search", queueHandler.HandleSearch)
	api.Post("/scraper/:platform/apply", queueHandler.HandleApply)
	api.Get("/scraper/task/:taskId", queueHandler.HandleGetTask)

	tierHandler := tierscraper.NewHandler(d.Tier)
	api.Post("/tier-scraper/:platform/search", tierHandler.HandleSearch)
	api.Post("/tier-scraper/:platform/job-details", tierHandler.HandleJobDetails)
	api.Get("/tier-scraper/usage", tierHandler.HandleUsage)

	cacheHandler := cache.NewHandler(d.Cache)
	api.Get("/cache", cacheHandler.HandleStats)
	api.Post("/cache", cacheHandler.HandleSetPolicy)
	api.Delete("/cache", cacheHandler.HandleInvalidate)

	proxyHandler := proxy.NewHandler(d.Proxy)
	api.Get("/proxy/stats", proxyHandler.HandleStats)
	api.Post("/proxy/refresh", proxyHandler.HandleRefresh)

	autoApplyHandler := autoapply.NewHandler(d.AutoApply)
	api.Post("/auto-apply/start", autoApplyHandler.HandleStart)
	api.Post("/auto-apply/stop", autoApplyHandler.HandleStop)
	api.Get("/auto-apply/status", autoApplyHandler.HandleStatus)

	return healthHandler
}
