// Package crawler 提供文档抓取服务客户端（Firecrawl 风格的作业轮询接口）
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/config"
	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/logger"
)

var tracer = otel.Tracer("crawler")

// Client 抓取服务客户端，实现 rag.Crawler。
// 提交抓取作业后轮询状态，直到完成、失败或超时。
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
}

// NewClient 创建抓取客户端
func NewClient(cfg *config.CrawlerConfig) *Client {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type crawlJob struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type crawlStatus struct {
	Status string      `json:"status"`
	Error  string      `json:"error"`
	Data   []crawlPage `json:"data"`
}

type crawlPage struct {
	Markdown string `json:"markdown"`
	Metadata struct {
		SourceURL string `json:"sourceURL"`
		Title     string `json:"title"`
	} `json:"metadata"`
}

// Crawl 抓取文档站点，返回校验后的页面。
// 缺少正文或来源地址的页面在此边界丢弃，不向内传播松散结构。
func (c *Client) Crawl(ctx context.Context, rootURL string, pageLimit int) ([]entity.Document, error) {
	ctx, span := tracer.Start(ctx, "crawler.Crawl",
		trace.WithAttributes(
			attribute.String("root_url", rootURL),
			attribute.Int("page_limit", pageLimit),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	job, err := c.startJob(ctx, rootURL, pageLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status, err := c.waitForJob(ctx, job)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	docs := make([]entity.Document, 0, len(status.Data))
	dropped := 0
	for _, page := range status.Data {
		doc := entity.Document{
			SourceURL: page.Metadata.SourceURL,
			Title:     page.Metadata.Title,
			Content:   page.Markdown,
		}
		if !doc.Valid() {
			dropped++
			continue
		}
		docs = append(docs, doc)
	}
	if dropped > 0 {
		logger.Warn(ctx, "dropped malformed crawl pages", "dropped", dropped, "kept", len(docs))
	}

	span.SetAttributes(attribute.Int("page_count", len(docs)))
	return docs, nil
}

// startJob 提交抓取作业
func (c *Client) startJob(ctx context.Context, rootURL string, pageLimit int) (string, error) {
	body, err := json.Marshal(crawlRequest{
		URL:           rootURL,
		Limit:         pageLimit,
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode crawl request: %v", rag.ErrCrawlFailed, err)
	}

	var job crawlJob
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/crawl", bytes.NewReader(body), &job); err != nil {
		return "", err
	}
	if !job.Success || job.ID == "" {
		return "", fmt.Errorf("%w: crawl job rejected for %s: %s", rag.ErrCrawlFailed, rootURL, job.Error)
	}
	return job.ID, nil
}

// waitForJob 轮询作业状态直到完成
func (c *Client) waitForJob(ctx context.Context, jobID string) (*crawlStatus, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status crawlStatus
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v1/crawl/"+jobID, nil, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			return &status, nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("%w: crawl job %s %s: %s", rag.ErrCrawlFailed, jobID, status.Status, status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: crawl job %s timed out: %v", rag.ErrCrawlFailed, jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", rag.ErrCrawlFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request to crawl service failed: %v", rag.ErrCrawlFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: crawl service returned %d: %s", rag.ErrCrawlFailed, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode crawl response: %v", rag.ErrCrawlFailed, err)
	}
	return nil
}
