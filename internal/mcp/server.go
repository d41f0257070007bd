// Package mcp exposes the ingestion/search surface as MCP tools,
// scoped by tenant_id/repository_id/branch rather than a single
// repo_path argument, and wired against indexer.Indexer,
// search.Service, and a worker pool.
package mcp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codetriever/ingestcore/internal/app"
	"github.com/codetriever/ingestcore/internal/indexer"
	"github.com/codetriever/ingestcore/internal/search"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/pkg/config"
)

// Server binds the ingestion/search core to an MCP tool surface.
type Server struct {
	config    *config.Config
	mcpServer *server.MCPServer

	services *app.Services
	repo     store.Repository
	indexer  *indexer.Indexer
	searcher *search.Service

	startedAt time.Time
}

// NewServer assembles the injected Services and registers the MCP
// tool surface against them, starting the background worker
// immediately so queued files drain without a separate command.
func NewServer(cfg *config.Config) (*Server, error) {
	svcs, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	svcs.RunWorker(context.Background())

	s := &Server{
		config:    cfg,
		services:  svcs,
		repo:      svcs.Repo,
		indexer:   svcs.Indexer,
		searcher:  svcs.Searcher,
		startedAt: time.Now(),
	}

	mcpServer := server.NewMCPServer(cfg.Server.Name, cfg.Server.Version)

	tools := s.getTools()
	for _, tool := range tools {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}
	s.mcpServer = mcpServer

	log.Printf("MCP server initialized: %s v%s", cfg.Server.Name, cfg.Server.Version)
	log.Printf("Registered %d tools", len(tools))

	return s, nil
}

// createToolHandler creates a handler function for a given tool name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Printf("Handling tool call: %s", toolName)

		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "semantic_search":
			return s.handleSemanticSearch(ctx, args)
		case "index_codebase":
			return s.handleIndexCodebase(ctx, args)
		case "get_job_status":
			return s.handleGetJobStatus(ctx, args)
		case "cancel_job":
			return s.handleCancelJob(ctx, args)
		case "get_index_status":
			return s.handleGetIndexStatus(ctx, args)
		case "get_context":
			return s.handleGetContext(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start starts the MCP server with stdio transport
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting MCP server on stdio transport...")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Close stops the background worker and releases the embedding pool.
func (s *Server) Close() error {
	log.Printf("Shutting down MCP server...")
	return s.services.Close()
}
