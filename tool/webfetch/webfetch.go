//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package webfetch provides a tool that downloads a web page and returns its
// readable text, e.g. documentation the model wants to consult.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-agent-turn/tool"
	"trpc.group/trpc-go/trpc-agent-turn/tool/function"
)

const (
	// ToolName is the name the model uses to call the tool.
	ToolName = "fetch_documentation"
	// defaultUserAgent is the default user agent for HTTP requests.
	defaultUserAgent = "trpc-agent-turn-webfetch/1.0"
	// defaultTimeout bounds a single fetch.
	defaultTimeout = 10 * time.Second
	// defaultMaxLength caps the returned text in runes.
	defaultMaxLength = 8000
	// maxBodyBytes caps the downloaded body.
	maxBodyBytes = 4 << 20
)

// Option is a functional option for configuring the fetch tool.
type Option func(*config)

type config struct {
	userAgent  string
	httpClient *http.Client
	timeout    time.Duration
	maxLength  int
}

// WithUserAgent sets the user agent for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each fetch. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxLength caps the returned text. Non-positive values keep the default.
func WithMaxLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

type fetchRequest struct {
	URL string `json:"url" jsonschema:"description=Absolute http or https URL of the page to fetch"`
}

type fetchResponse struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

type fetcher struct {
	cfg config
}

// NewTool creates the fetch_documentation tool.
func NewTool(opts ...Option) tool.CallableTool {
	cfg := config{
		userAgent:  defaultUserAgent,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		maxLength:  defaultMaxLength,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f := &fetcher{cfg: cfg}
	return function.NewFunctionTool(
		f.fetch,
		function.WithName(ToolName),
		function.WithDescription("Fetch a web page, typically documentation, and return its title "+
			"and readable text with markup, scripts and styles removed."),
	)
}

func (f *fetcher) fetch(ctx context.Context, req fetchRequest, _ *tool.Runtime) (fetchResponse, error) {
	target, err := parseURL(req.URL)
	if err != nil {
		return fetchResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.cfg.userAgent)
	httpReq.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.cfg.httpClient.Do(httpReq)
	if err != nil {
		return fetchResponse{}, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchResponse{}, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetchResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}

	out := fetchResponse{URL: target}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.Contains(contentType, "html") {
		page, err := extractText(strings.NewReader(string(body)))
		if err != nil {
			return fetchResponse{}, fmt.Errorf("parse %s: %w", target, err)
		}
		out.Title, out.Content = page.title, page.text
	} else {
		out.Content = strings.TrimSpace(string(body))
	}
	out.Content, out.Truncated = truncate(out.Content, f.cfg.maxLength)
	return out, nil
}

func parseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}

func truncate(s string, n int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= n {
		return s, false
	}
	return string(runes[:n]), true
}
