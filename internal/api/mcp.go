package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server. The store and assistant
// slices are shared with the HTTP layer.
type MCPDeps struct {
	Store     PaperStore
	Assistant Assistant
}

// NewMCPServer creates an MCP server exposing the paper library to MCP
// clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"paperdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("paperdesk — local research paper library with semantic search and Q&A."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_papers",
			mcp.WithDescription("Semantically search the paper library and return the most relevant papers with excerpts."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 3)")),
		),
		mcpSearchPapers(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_papers",
			mcp.WithDescription("Answer a question using the paper library as retrieval context. Returns the answer and the source papers."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskPapers(deps),
	)

	s.AddTool(
		mcp.NewTool("list_papers",
			mcp.WithDescription("List all papers in the library with their metadata."),
		),
		mcpListPapers(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize_paper",
			mcp.WithDescription("Generate a structured summary of one stored paper."),
			mcp.WithString("id", mcp.Description("Paper id"), mcp.Required()),
		),
		mcpSummarizePaper(deps),
	)

	return s
}

func mcpSearchPapers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > 20 {
			limit = 20
		}

		results, err := deps.Store.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type hit struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			Distance float64 `json:"distance"`
			Excerpt  string  `json:"excerpt"`
		}
		hits := make([]hit, len(results))
		for i, r := range results {
			hits[i] = hit{
				ID:       r.Document.ID,
				Title:    r.Document.Metadata.Title,
				Distance: r.Distance,
				Excerpt:  truncate(r.Document.Content, 500),
			}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskPapers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Assistant.Answer(ctx, question, true, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListPapers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Store.ListAll(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("list failed: %v", err)), nil
		}

		type entry struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Filename  string `json:"filename"`
			WordCount int    `json:"word_count"`
		}
		entries := make([]entry, len(docs))
		for i, d := range docs {
			entries[i] = entry{
				ID:        d.ID,
				Title:     d.Metadata.Title,
				Filename:  d.Metadata.Filename,
				WordCount: d.Metadata.WordCount,
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal papers: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSummarizePaper(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		doc, ok, err := deps.Store.Get(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("get failed: %v", err)), nil
		}
		if !ok {
			return mcpError(fmt.Sprintf("paper %s not found", id)), nil
		}

		summary, err := deps.Assistant.Summarize(ctx, doc.Content, doc.Metadata.Title)
		if err != nil {
			return mcpError(fmt.Sprintf("summarize failed: %v", err)), nil
		}
		return mcpText(summary.Summary), nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
