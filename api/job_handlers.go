package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lippkg/lip-index/model"
)

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	job, err := api.jobs.GetJob(c.Param("jobId"))
	if err != nil {
		handleError(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobsHandler lists sync runs, newest first, optionally filtered by type and status
func (api *API) ListJobsHandler(c *gin.Context) {
	var typeFilter *model.JobType
	if typeParam := c.Query("type"); typeParam != "" {
		jobType := model.JobType(typeParam)
		typeFilter = &jobType
	}

	var statusFilter *model.JobStatus
	if statusParam := c.Query("status"); statusParam != "" {
		status := model.JobStatus(statusParam)
		statusFilter = &status
	}

	jobList := api.jobs.ListJobs(typeFilter, statusFilter)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobList,
		"total": len(jobList),
	})
}

// GetJobMetricsHandler handles requests to get job performance metrics
func (api *API) GetJobMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":          api.jobs.GetMetrics(),
		"success_rate":     api.jobs.GetJobSuccessRate(),
		"current_workload": api.jobs.GetCurrentWorkload(),
	})
}
