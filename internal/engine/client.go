// Package engine 是远端声音克隆引擎的 HTTP 客户端。
package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable 网络错误、非 2xx 响应或无法解析的响应
var ErrUnavailable = errors.New("cloning engine unavailable")

// Failure 引擎明确返回的训练失败
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "cloning engine rejected training: " + f.Reason
}

// SubmitRequest 一次训练请求，CorrelationID 用于引擎侧的幂等和日志关联
type SubmitRequest struct {
	Audio         []byte
	ModelID       string
	CorrelationID string
}

type trainPayload struct {
	ModelID       string `json:"model_id"`
	CorrelationID string `json:"correlation_id"`
	Audio         string `json:"audio"`
}

type trainResult struct {
	Success bool   `json:"success"`
	VoiceID string `json:"voice_id"`
	Error   string `json:"error"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient 替换默认的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// 整体超时由调用方的 context 控制
		http: &http.Client{Transport: http.DefaultTransport, Timeout: 0},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit 提交参考音频进行训练，成功返回引擎分配的 voice id。
// 返回的错误要么是 *Failure，要么包装了 ErrUnavailable，要么是 ctx 的错误。
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(trainPayload{
		ModelID:       req.ModelID,
		CorrelationID: req.CorrelationID,
		Audio:         base64.StdEncoding.EncodeToString(req.Audio),
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/voice-clone/train", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var result trainResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", fmt.Errorf("%w: status %d, decode: %v", ErrUnavailable, resp.StatusCode, err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !result.Success {
			return "", &Failure{Reason: nonEmpty(result.Error, "unknown reason")}
		}
		if result.VoiceID == "" {
			return "", fmt.Errorf("%w: success without voice id after %s", ErrUnavailable, time.Since(start))
		}
		return result.VoiceID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && result.Error != "":
		// 4xx 且带有错误说明，视为引擎拒绝（比如音频质量不合格）
		return "", &Failure{Reason: result.Error}
	default:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
