package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/core/engine"
)

// JobHandler 定时任务API处理器
type JobHandler struct {
	engine *engine.Engine
}

// NewJobHandler 创建JobHandler
func NewJobHandler(eng *engine.Engine) *JobHandler {
	return &JobHandler{engine: eng}
}

// List 列出已注册的定时任务
// GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	cs := h.engine.CronScheduler()
	names := cs.GetRegisteredJobs()
	items := make([]dto.JobSummary, 0, len(names))
	for _, name := range names {
		job, ok := cs.GetJob(name)
		if !ok {
			continue
		}
		lastRun, _ := cs.LastRun(name)
		items = append(items, dto.JobSummary{
			Name:       job.Name,
			Graph:      job.Graph,
			Processors: job.Processors,
			Cron:       job.Cron,
			Output:     job.Output,
			LastRunID:  lastRun,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.JobSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Run 立即执行一次定时任务
// POST /api/v1/jobs/:name/run
func (h *JobHandler) Run(c *gin.Context) {
	name := c.Param("name")
	res, err := h.engine.CronScheduler().RunJob(c.Request.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, dto.NewErrorResponse(status, fmt.Sprintf("执行定时任务失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]interface{}{
		"run_id":   res.RunID,
		"makespan": res.Makespan,
	}))
}
