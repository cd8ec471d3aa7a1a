package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/core/engine"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/dot"
)

// maxBodySize DOT 请求体上限
const maxBodySize = 4 << 20

// SolveHandler 求解API处理器
type SolveHandler struct {
	engine *engine.Engine
}

// NewSolveHandler 创建SolveHandler
func NewSolveHandler(eng *engine.Engine) *SolveHandler {
	return &SolveHandler{engine: eng}
}

// Solve 同步求解最优调度
// POST /api/v1/solve
// 请求体为 JSON（dto.SolveRequest）或 DOT 文本（参数走查询串）
func (h *SolveHandler) Solve(c *gin.Context) {
	var (
		src string
		req engine.SolveRequest
	)
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body dto.SolveRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
			return
		}
		src = body.DOT
		req = engine.SolveRequest{Processors: body.Processors, Threads: body.Threads, SkipCache: body.SkipCache}
	} else {
		var query dto.SolveQueryRequest
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
			return
		}
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("读取请求体失败: %v", err)))
			return
		}
		src = string(data)
		req = engine.SolveRequest{Processors: query.Processors, Threads: query.Threads, SkipCache: query.SkipCache}
	}

	g, err := dot.ReadString(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("解析任务图失败: %v", err)))
		return
	}
	req.Graph = g
	req.Source = "api"

	res, err := h.engine.Solve(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.NewErrorResponse(status, fmt.Sprintf("求解失败: %v", err)))
		return
	}

	resp, err := toSolveResponse(res, g, req.Processors)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}

// toSolveResponse 求解结果转响应
func toSolveResponse(res *engine.Result, g *graph.Graph, processors int) (dto.SolveResponse, error) {
	var buf bytes.Buffer
	if err := dot.NewWriter(&buf).Write(res.Schedule, g); err != nil {
		return dto.SolveResponse{}, fmt.Errorf("生成调度DOT失败: %w", err)
	}
	tasks := make([]dto.TaskPlacement, 0, res.Schedule.Len())
	for _, t := range res.Schedule.Tasks() {
		tasks = append(tasks, dto.TaskPlacement{
			Label:     t.Node.Label,
			Processor: t.Processor + 1,
			Start:     t.Start,
			End:       t.End(),
		})
	}
	resp := dto.SolveResponse{
		RunID:          res.RunID,
		Graph:          g.Name(),
		Processors:     processors,
		Makespan:       res.Makespan,
		GreedyMakespan: res.GreedyMakespan,
		FromCache:      res.FromCache,
		Threads:        res.Threads,
		Duration:       formatDuration(res.Duration),
		Tasks:          tasks,
		DOT:            buf.String(),
	}
	if !res.FromCache {
		resp.Stats = map[string]int64{
			"expanded":     res.Stats.Expanded,
			"bound_pruned": res.Stats.BoundPruned,
			"arborist_cut": res.Stats.ArboristCut,
			"terminals":    res.Stats.Terminals,
			"improvements": res.Improvements,
		}
	}
	return resp, nil
}
