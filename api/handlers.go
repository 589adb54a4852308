// Package api exposes the catalog over HTTP.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/lippkg/lip-index/internal/jobs"
	"github.com/lippkg/lip-index/internal/search"
	"github.com/lippkg/lip-index/services"
)

// JobReporter is the read side of the job manager the API exposes.
type JobReporter interface {
	services.JobManager
	GetMetrics() jobs.JobMetricsData
	GetJobSuccessRate() float64
	GetCurrentWorkload() int64
}

// BreakerReporter reports upstream circuit breaker states by name.
type BreakerReporter interface {
	BreakerState() map[string]string
}

// API holds dependencies for API handlers.
type API struct {
	search   *search.Service
	jobs     JobReporter
	breakers BreakerReporter
	logger   hclog.Logger
}

// NewAPI creates a new API handler structure. jobReporter and breakers may be nil,
// in which case the job routes are not registered and health reports no breakers.
func NewAPI(searchService *search.Service, jobReporter JobReporter, breakers BreakerReporter, logger hclog.Logger) (*API, error) {
	if searchService == nil {
		return nil, fmt.Errorf("search service cannot be nil")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &API{
		search:   searchService,
		jobs:     jobReporter,
		breakers: breakers,
		logger:   logger.Named("api"),
	}, nil
}

// NewRouter builds a gin engine with the middleware stack and every route.
func NewRouter(apiHandler *API, corsAllowOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(
		RequestIDMiddleware(),
		AccessLogMiddleware(apiHandler.logger),
		RecoveryMiddleware(apiHandler.logger),
		CORSMiddleware(corsAllowOrigin),
	)
	SetupRoutes(router, apiHandler)
	return router
}

// SetupRoutes defines all the API routes.
func SetupRoutes(router *gin.Engine, apiHandler *API) {
	router.GET("/health", apiHandler.HealthCheckHandler)

	router.GET("/search/teeth", apiHandler.SearchTeethHandler)

	teethRoutes := router.Group("/teeth")
	{
		teethRoutes.GET("/:owner/:repo", apiHandler.ListVersionsHandler)
		teethRoutes.GET("/:owner/:repo/:version", apiHandler.GetVersionHandler)
	}

	if apiHandler.jobs != nil {
		jobRoutes := router.Group("/jobs")
		{
			jobRoutes.GET("", apiHandler.ListJobsHandler)
			jobRoutes.GET("/metrics", apiHandler.GetJobMetricsHandler)
			jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		SendNotFound(c, "not found")
	})
}

// HealthCheckHandler reports liveness and the upstream breaker states.
func (api *API) HealthCheckHandler(c *gin.Context) {
	breakers := map[string]string{}
	if api.breakers != nil {
		breakers = api.breakers.BreakerState()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"breakers": breakers,
	})
}

// SearchTeethHandler handles GET /search/teeth.
func (api *API) SearchTeethHandler(c *gin.Context) {
	raw, err := search.RawParamsFromQuery(c.Request.URL.Query())
	if err != nil {
		handleError(c, api.logger, err)
		return
	}

	resp, err := api.search.Search(c.Request.Context(), raw)
	if err != nil {
		handleError(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListVersionsHandler returns every stored version of one tooth.
func (api *API) ListVersionsHandler(c *gin.Context) {
	resp, err := api.search.Versions(c.Request.Context(), c.Param("owner"), c.Param("repo"))
	if err != nil {
		handleError(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetVersionHandler returns one stored version of one tooth.
func (api *API) GetVersionHandler(c *gin.Context) {
	resp, err := api.search.Version(c.Request.Context(), c.Param("owner"), c.Param("repo"), c.Param("version"))
	if err != nil {
		handleError(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
