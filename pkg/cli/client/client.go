// Package client 是 optsched HTTP API 的客户端，供命令行使用
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LENAX/optsched/pkg/api/dto"
)

// Client HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端，timeout 需覆盖服务端求解时间
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ========== Solve API ==========

// Solve 提交 DOT 文本求解
func (c *Client) Solve(dotSource string, processors, threads int, skipCache bool) (*dto.SolveResponse, error) {
	req := dto.SolveRequest{DOT: dotSource, Processors: processors, Threads: threads, SkipCache: skipCache}
	var resp dto.APIResponse[dto.SolveResponse]
	if err := c.post("/api/v1/solve", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Run API ==========

// ListRuns 列出运行记录
func (c *Client) ListRuns(status, fingerprint string, limit, offset int) (*dto.ListResponse[dto.RunSummary], error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if fingerprint != "" {
		params.Set("fingerprint", fingerprint)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.RunSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetRun 获取运行记录详情
func (c *Client) GetRun(id string) (*dto.RunDetail, error) {
	var resp dto.APIResponse[dto.RunDetail]
	if err := c.get("/api/v1/runs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// DeleteRun 删除运行记录
func (c *Client) DeleteRun(id string) error {
	return c.action(http.MethodDelete, "/api/v1/runs/"+url.PathEscape(id))
}

// CancelRun 取消运行中的求解
func (c *Client) CancelRun(id string) error {
	return c.action(http.MethodPost, "/api/v1/runs/"+url.PathEscape(id)+"/cancel")
}

// ========== Job API ==========

// ListJobs 列出定时任务
func (c *Client) ListJobs() (*dto.ListResponse[dto.JobSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.JobSummary]]
	if err := c.get("/api/v1/jobs", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// RunJob 立即执行定时任务，返回 RunID
func (c *Client) RunJob(name string) (string, error) {
	var resp dto.APIResponse[struct {
		RunID string `json:"run_id"`
	}]
	if err := c.do(http.MethodPost, "/api/v1/jobs/"+url.PathEscape(name)+"/run", nil, &resp); err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", errors.New(resp.Message)
	}
	return resp.Data.RunID, nil
}

// ========== Health API ==========

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func (c *Client) action(method, path string) error {
	var resp dto.APIResponse[any]
	if err := c.do(method, path, nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

func (c *Client) get(path string, result interface{}) error {
	return c.do(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	return c.do(http.MethodPost, path, body, result)
}

func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, status: %d, body: %s", err, resp.StatusCode, string(body))
	}

	return nil
}
