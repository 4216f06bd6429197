//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package webfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docPage = `<!DOCTYPE html>
<html>
<head><title> Runner Guide </title><style>body{color:red}</style></head>
<body>
<nav>Home | Docs</nav>
<h1>Getting   started</h1>
<p>Create a runner with a <b>model</b> and a store.</p>
<script>alert("x")</script>
<ul><li>Run</li><li>Invoke</li></ul>
<footer>Copyright</footer>
</body>
</html>`

func TestExtractText(t *testing.T) {
	p, err := extractText(strings.NewReader(docPage))
	require.NoError(t, err)
	assert.Equal(t, "Runner Guide", p.title)
	assert.Equal(t, "Getting started\nCreate a runner with a model and a store.\nRun\nInvoke", p.text)
}

func TestFetch_HTML(t *testing.T) {
	userAgent := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(docPage))
	}))
	defer server.Close()

	tl := NewTool(WithUserAgent("test-agent/1.0"))
	assert.Equal(t, ToolName, tl.Declaration().Name)

	args, err := json.Marshal(fetchRequest{URL: server.URL + "/guide"})
	require.NoError(t, err)
	out, err := tl.Call(context.Background(), args, nil)
	require.NoError(t, err)
	rsp := out.(fetchResponse)
	assert.Equal(t, "test-agent/1.0", <-userAgent)
	assert.Equal(t, "Runner Guide", rsp.Title)
	assert.Contains(t, rsp.Content, "Create a runner with a model and a store.")
	assert.NotContains(t, rsp.Content, "alert")
	assert.False(t, rsp.Truncated)
}

func TestFetch_PlainTextTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  héllo world  "))
	}))
	defer server.Close()

	f := &fetcher{cfg: config{httpClient: server.Client(), timeout: time.Second, maxLength: 5}}
	rsp, err := f.fetch(context.Background(), fetchRequest{URL: server.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "héllo", rsp.Content)
	assert.True(t, rsp.Truncated)
}

func TestFetch_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()
	f := &fetcher{cfg: config{httpClient: server.Client(), timeout: time.Second, maxLength: 100}}

	for _, raw := range []string{"", "ftp://example.com/x", "https://", "::bad"} {
		_, err := f.fetch(context.Background(), fetchRequest{URL: raw}, nil)
		assert.Error(t, err, raw)
	}
	_, err := f.fetch(context.Background(), fetchRequest{URL: server.URL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := &fetcher{cfg: config{httpClient: server.Client(), timeout: 20 * time.Millisecond, maxLength: 100}}
	_, err := f.fetch(context.Background(), fetchRequest{URL: server.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
