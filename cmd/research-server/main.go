// Command research-server serves the research tools over the MCP
// streamable HTTP transport.
//
// It registers the arXiv, Wikipedia and web search tools and mounts the
// MCP endpoint at /mcp. When a Redis address is configured, tool results
// are cached.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/effective-security/reagent/mcp"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/reagent/tools/arxiv"
	"github.com/effective-security/reagent/tools/cached"
	"github.com/effective-security/reagent/tools/websearch"
	"github.com/effective-security/reagent/tools/wikipedia"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "research-server")

func main() {
	// environment variables already set take precedence over .env values
	_ = godotenv.Load()

	var (
		addr     = flag.String("addr", "127.0.0.1:8000", "address to listen on")
		redisURL = flag.String("redis", "", "optional Redis address for tool result caching, for example redis://127.0.0.1:6379")
		cacheTTL = flag.Duration("cache-ttl", cached.DefaultTTL, "tool result cache TTL")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *verbose {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	if err := run(*addr, *redisURL, *cacheTTL); err != nil {
		logger.KV(xlog.ERROR, "reason", "run", "err", err.Error())
		os.Exit(1)
	}
}

func run(addr, redisURL string, cacheTTL time.Duration) error {
	var cache redis.UniversalClient
	if redisURL != "" {
		options, err := redis.ParseURL(redisURL)
		if err != nil {
			return err
		}
		cache = redis.NewClient(options)
		defer func() { _ = cache.Close() }()
	}

	srv := mcp.NewServer("research-server", "1.0.0",
		mcp.WithInstructions("Research tools: arXiv, Wikipedia and web search."))

	list, err := buildTools(cache, cacheTTL)
	if err != nil {
		return err
	}
	for _, tool := range list {
		if err := srv.RegisterTool(tool); err != nil {
			return err
		}
		logger.KV(xlog.INFO, "status", "registered_tool", "tool", tool.Name())
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv)

	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "addr", addr)
		errCh <- hs.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.KV(xlog.INFO, "status", "shutting_down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(ctx)
}

func buildTools(cache redis.UniversalClient, cacheTTL time.Duration) ([]tools.ITool, error) {
	arxivTool, err := arxiv.New()
	if err != nil {
		return nil, err
	}
	wikiTool, err := wikipedia.New()
	if err != nil {
		return nil, err
	}

	list := []tools.ITool{arxivTool, wikiTool}

	// web search needs a Tavily key, skip the tool when it is not configured
	searchTool, err := websearch.New()
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "websearch_disabled", "err", err.Error())
	} else {
		list = append(list, searchTool)
	}

	if cache == nil {
		return list, nil
	}
	wrapped := make([]tools.ITool, len(list))
	for i, tool := range list {
		wrapped[i] = cached.New(tool, cache, cacheTTL)
	}
	return wrapped, nil
}
