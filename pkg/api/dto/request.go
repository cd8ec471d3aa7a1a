package dto

// SolveRequest JSON 形式的求解请求
type SolveRequest struct {
	DOT        string `json:"dot" binding:"required"`
	Processors int    `json:"processors" binding:"required,min=1"`
	Threads    int    `json:"threads" binding:"omitempty,min=1"`
	SkipCache  bool   `json:"skip_cache"`
}

// SolveQueryRequest 请求体为 DOT 文本时的查询参数
type SolveQueryRequest struct {
	Processors int  `form:"processors" binding:"required,min=1"`
	Threads    int  `form:"threads" binding:"omitempty,min=1"`
	SkipCache  bool `form:"skip_cache"`
}

// RunQueryRequest 运行记录查询请求
type RunQueryRequest struct {
	Fingerprint string `form:"fingerprint" binding:"omitempty"`
	Status      string `form:"status" binding:"omitempty,oneof=FINISHED FAILED CANCELLED"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset      int    `form:"offset" binding:"omitempty,min=0"`
}

// GetDefaultLimit 获取默认limit
func (r *RunQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
