package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	modelpkg "github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/search"
)

// Tool definitions for the MCP server
func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "semantic_search",
			Description: "Search for code using natural language queries. Use this tool when the user asks questions like 'where is...', 'find...', 'show me...', 'how do we...', or any question about locating specific code, functions, or logic. Returns ranked code matches with file locations, line numbers, and similarity scores.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural language search query describing what code to find.",
					},
					"tenant_id": map[string]interface{}{
						"type":        "string",
						"description": "Tenant the search is scoped to.",
					},
					"repository_id": map[string]interface{}{
						"type":        "string",
						"description": "Repository to search within (optional; omit to search across the tenant's repositories).",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch to search within (optional).",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of results to return (default: 5)",
						"default":     5,
					},
				},
				Required: []string{"query", "tenant_id"},
			},
		},
		{
			Name:        "index_codebase",
			Description: "Submit a repository's files for indexing. Use this tool when: (1) first time working with a new repository, (2) user explicitly asks to 'index', 'scan', or 'prepare' a codebase. Returns a job_id immediately; indexing proceeds in the background. Use get_job_status to track progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"tenant_id": map[string]interface{}{
						"type":        "string",
						"description": "Tenant the job is scoped to.",
					},
					"repository_id": map[string]interface{}{
						"type":        "string",
						"description": "Repository identifier (e.g. a git remote URL or project name).",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch being indexed.",
					},
					"files": map[string]interface{}{
						"type":        "array",
						"description": "Files to submit, each with path and content.",
					},
				},
				Required: []string{"tenant_id", "repository_id", "branch", "files"},
			},
		},
		{
			Name:        "get_job_status",
			Description: "Check the status of an indexing job started by index_codebase. Use this when the user asks 'is indexing done?' or 'how's the job going?'.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"job_id": map[string]interface{}{
						"type":        "string",
						"description": "Job ID returned by index_codebase.",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "get_index_status",
			Description: "Get indexing status and statistics for a tenant/repository/branch. Use this tool when the user asks if a repository is indexed, how many files are indexed, or whether indexing is currently running.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"tenant_id":     map[string]interface{}{"type": "string"},
					"repository_id": map[string]interface{}{"type": "string"},
					"branch":        map[string]interface{}{"type": "string"},
				},
				Required: []string{"tenant_id", "repository_id", "branch"},
			},
		},
		{
			Name:        "cancel_job",
			Description: "Request cancellation of an indexing job started by index_codebase. Use this when the user asks to stop, abort, or cancel an in-progress indexing run. The worker abandons the job's remaining queued files the next time it checks; files already in flight still finish.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"job_id": map[string]interface{}{
						"type":        "string",
						"description": "Job ID returned by index_codebase.",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "get_context",
			Description: "Fetch a slice of a file's content around a given line, along with the chunk metadata that covers it. Use this after semantic_search to show the user more surrounding code than a single chunk preview.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"tenant_id":     map[string]interface{}{"type": "string"},
					"repository_id": map[string]interface{}{"type": "string"},
					"branch":        map[string]interface{}{"type": "string"},
					"file_path":     map[string]interface{}{"type": "string"},
					"line": map[string]interface{}{
						"type":        "number",
						"description": "Line number to center the context window on.",
					},
					"context_lines": map[string]interface{}{
						"type":        "number",
						"description": "Lines of context on each side of line (default: 20)",
						"default":     20,
					},
				},
				Required: []string{"tenant_id", "repository_id", "branch", "file_path"},
			},
		},
	}
}

// Tool handlers

func (s *Server) handleSemanticSearch(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}
	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return errorResult("tenant_id is required and must be a string"), nil
	}
	repositoryID, _ := args["repository_id"].(string)
	branch, _ := args["branch"].(string)

	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	matches, err := s.searcher.Search(ctx, tenantID, repositoryID, branch, query, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: search.FormatResults(matches)},
		},
	}, nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return errorResult("tenant_id is required and must be a string"), nil
	}
	repositoryID, ok := args["repository_id"].(string)
	if !ok || repositoryID == "" {
		return errorResult("repository_id is required and must be a string"), nil
	}
	branch, ok := args["branch"].(string)
	if !ok || branch == "" {
		return errorResult("branch is required and must be a string"), nil
	}

	rawFiles, ok := args["files"].([]interface{})
	if !ok || len(rawFiles) == 0 {
		return errorResult("files is required and must be a non-empty array"), nil
	}

	submissions := make([]modelpkg.SubmittedFile, 0, len(rawFiles))
	for _, rf := range rawFiles {
		entry, ok := rf.(map[string]interface{})
		if !ok {
			return errorResult("each file entry must be an object with path and content"), nil
		}
		path, _ := entry["path"].(string)
		content, _ := entry["content"].(string)
		if path == "" {
			return errorResult("each file entry requires a non-empty path"), nil
		}
		submissions = append(submissions, modelpkg.SubmittedFile{Path: path, Content: content})
	}

	job, err := s.indexer.StartJob(ctx, tenantID, repositoryID, branch, repositoryID, modelpkg.CommitContext{}, submissions)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to start indexing job: %v", err)), nil
	}

	response := map[string]interface{}{
		"job_id":      job.JobID,
		"status":      job.Status,
		"files_total": job.FilesTotal,
		"note":        "use get_job_status to track progress",
	}
	return successResult(response), nil
}

func (s *Server) handleGetJobStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, ok := args["job_id"].(string)
	if !ok || jobID == "" {
		return errorResult("job_id is required and must be a string"), nil
	}

	job, err := s.indexer.JobStatus(ctx, jobID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get job status: %v", err)), nil
	}
	if job == nil {
		return errorResult(fmt.Sprintf("no job found with id %s", jobID)), nil
	}
	return successResult(job), nil
}

func (s *Server) handleCancelJob(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, ok := args["job_id"].(string)
	if !ok || jobID == "" {
		return errorResult("job_id is required and must be a string"), nil
	}

	if err := s.indexer.CancelJob(ctx, jobID); err != nil {
		return errorResult(fmt.Sprintf("failed to cancel job: %v", err)), nil
	}

	return successResult(map[string]interface{}{
		"job_id": jobID,
		"status": modelpkg.JobCancelled,
	}), nil
}

func (s *Server) handleGetIndexStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	tenantID, _ := args["tenant_id"].(string)
	repositoryID, _ := args["repository_id"].(string)
	branch, _ := args["branch"].(string)
	if tenantID == "" || repositoryID == "" || branch == "" {
		return errorResult("tenant_id, repository_id, and branch are all required"), nil
	}

	running, files, err := s.indexer.IndexStatus(ctx, tenantID, repositoryID, branch)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get index status: %v", err)), nil
	}

	response := map[string]interface{}{
		"running":        running,
		"files_indexed":  len(files),
		"files":          files,
		"server":         s.config.Server.Name,
		"version":        s.config.Server.Version,
		"uptime":         time.Since(s.startedAt).String(),
	}
	return successResult(response), nil
}

func (s *Server) handleGetContext(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	tenantID, _ := args["tenant_id"].(string)
	repositoryID, _ := args["repository_id"].(string)
	branch, _ := args["branch"].(string)
	filePath, _ := args["file_path"].(string)
	if tenantID == "" || repositoryID == "" || branch == "" || filePath == "" {
		return errorResult("tenant_id, repository_id, branch, and file_path are all required"), nil
	}

	line := 1
	if l, ok := args["line"].(float64); ok && l > 0 {
		line = int(l)
	}
	contextLines := 20
	if c, ok := args["context_lines"].(float64); ok && c > 0 {
		contextLines = int(c)
	}

	file, err := s.repo.GetFileMetadata(ctx, tenantID, repositoryID, branch, filePath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get file metadata: %v", err)), nil
	}
	if file == nil {
		return errorResult(fmt.Sprintf("no indexed file found at %s", filePath)), nil
	}

	chunks, err := s.repo.GetFileChunks(ctx, tenantID, repositoryID, branch, filePath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get file chunks: %v", err)), nil
	}

	lines := strings.Split(file.Content, "\n")
	start := line - contextLines - 1
	if start < 0 {
		start = 0
	}
	end := line + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	var slice string
	if start < end {
		slice = strings.Join(lines[start:end], "\n")
	}

	var covering []modelpkg.ChunkMetadata
	for _, c := range chunks {
		if c.StartLine <= line && line <= c.EndLine {
			covering = append(covering, c)
		}
	}

	response := map[string]interface{}{
		"file_path":       filePath,
		"start_line":      start + 1,
		"end_line":        end,
		"content":         slice,
		"covering_chunks": covering,
		"commit_sha":      file.CommitSHA,
		"indexed_at":      file.IndexedAt,
	}
	return successResult(response), nil
}

// Helper functions

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(jsonData)},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Error: %s", message)},
		},
		IsError: true,
	}
}
