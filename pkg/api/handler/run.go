package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/core/engine"
	"github.com/LENAX/optsched/pkg/storage"
)

// RunHandler 运行记录API处理器
type RunHandler struct {
	engine *engine.Engine
}

// NewRunHandler 创建RunHandler
func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// List 列出运行记录
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	var query dto.RunQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}
	repo := h.engine.Repository()
	if repo == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "存储未配置"))
		return
	}

	limit := query.GetDefaultLimit()
	// 多取一条判断是否还有下一页
	runs, err := repo.ListRuns(c.Request.Context(), storage.RunFilter{
		Fingerprint: query.Fingerprint,
		Status:      storage.RunStatus(query.Status),
		Limit:       limit + 1,
		Offset:      query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行记录失败: %v", err)))
		return
	}
	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}

	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, toRunSummary(run))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total:   len(items),
		Items:   items,
		HasMore: hasMore,
	}))
}

// Get 获取运行记录详情
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RunDetail{
		RunSummary: toRunSummary(run),
		Threads:    run.Threads,
		Bounds:     run.Bounds,
		Arborist:   run.Arborist,
		Tiers:      run.Tiers,
		Stats:      run.Stats,
		DOT:        run.ScheduleDOT,
	}))
}

// Schedule 以 DOT 文本返回最优调度
// GET /api/v1/runs/:id/schedule
func (h *RunHandler) Schedule(c *gin.Context) {
	run, ok := h.load(c)
	if !ok {
		return
	}
	if run.ScheduleDOT == "" {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "该运行没有调度结果"))
		return
	}
	c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(run.ScheduleDOT))
}

// Delete 删除运行记录
// DELETE /api/v1/runs/:id
func (h *RunHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	repo := h.engine.Repository()
	if repo == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "存储未配置"))
		return
	}
	deleted, err := repo.DeleteRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("删除运行记录失败: %v", err)))
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行记录不存在"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "运行记录已删除",
		"id":      id,
	}))
}

// Active 列出运行中的求解
// GET /api/v1/runs/active
func (h *RunHandler) Active(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.engine.ActiveRuns()))
}

// Cancel 取消运行中的求解
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !h.engine.Cancel(id) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "求解不存在或已结束"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "求解已取消",
		"id":      id,
	}))
}

// load 读取路径参数对应的运行记录，失败时已写响应
func (h *RunHandler) load(c *gin.Context) (*storage.RunRecord, bool) {
	repo := h.engine.Repository()
	if repo == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "存储未配置"))
		return nil, false
	}
	run, err := repo.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行记录失败: %v", err)))
		return nil, false
	}
	if run == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行记录不存在"))
		return nil, false
	}
	return run, true
}

func toRunSummary(run *storage.RunRecord) dto.RunSummary {
	return dto.RunSummary{
		ID:             run.ID,
		GraphName:      run.GraphName,
		Fingerprint:    run.Fingerprint,
		Processors:     run.Processors,
		Status:         string(run.Status),
		Makespan:       run.Makespan,
		GreedyMakespan: run.GreedyMakespan,
		Source:         run.Source,
		Duration:       formatDuration(run.Duration),
		ErrorMessage:   run.Error,
		CreatedAt:      run.CreateTime,
	}
}
