// Package mcp implements the Model Context Protocol server for strata.
package mcp

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/avensora/strata/internal/engine"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/retrieval"
	"github.com/avensora/strata/pkg/tokenizer"
)

const (
	// defaultRetrieveBudget is the default token budget for retrieve responses.
	defaultRetrieveBudget = 2000

	// defaultRecentLimit is the default number of recent interactions.
	defaultRecentLimit = 10
)

// Server wraps an MCPServer with the memory engine.
type Server struct {
	mcp    *mcpserver.MCPServer
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates a new MCP server. If eng is nil, tool calls return an
// error response instead of panicking.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"strata",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildStoreTool(), s.handleStore)
	mcpSrv.AddTool(buildRetrieveTool(), s.handleRetrieve)
	mcpSrv.AddTool(buildRecentTool(), s.handleRecent)
	mcpSrv.AddTool(buildStatusTool(), s.handleStatus)
	mcpSrv.AddTool(buildFactTool(), s.handleFact)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleStore is the exported handler for the "memory_store" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleStore(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStore(ctx, req)
}

// HandleRetrieve is the exported handler for the "memory_retrieve" tool.
func (s *Server) HandleRetrieve(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRetrieve(ctx, req)
}

// HandleRecent is the exported handler for the "memory_recent" tool.
func (s *Server) HandleRecent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRecent(ctx, req)
}

// HandleStatus is the exported handler for the "memory_status" tool.
func (s *Server) HandleStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStatus(ctx, req)
}

// HandleFact is the exported handler for the "memory_fact" tool.
func (s *Server) HandleFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleFact(ctx, req)
}

// --- helpers ---

// xmlEscape replaces characters that have special meaning in XML to prevent
// prompt injection when embedding memory content in XML-delimited templates.
func xmlEscape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// formatEntry renders one retrieved memory for prompt injection. Content
// is escaped here, at presentation, so stored records stay verbatim.
func formatEntry(v models.RecordView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s, similarity %.2f] %s", v.Tier, v.Similarity, xmlEscape(v.Payload.Input))
	if v.Payload.Response != "" {
		fmt.Fprintf(&b, " => %s", xmlEscape(v.Payload.Response))
	}
	return b.String()
}

// --- tool definitions ---

func buildStoreTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_store",
		mcpgo.WithDescription("Store one interaction in tiered memory. Scores importance, embeds the input, and writes the record into the short-term, episodic, and working tiers."),
		mcpgo.WithString("input",
			mcpgo.Required(),
			mcpgo.Description("The user input text to remember"),
		),
		mcpgo.WithString("response",
			mcpgo.Description("The assistant response paired with the input"),
		),
		mcpgo.WithString("session_id",
			mcpgo.Description("Session the interaction belongs to (generated when omitted)"),
		),
		mcpgo.WithString("emotion",
			mcpgo.Description("Primary emotion tag for the interaction"),
		),
		mcpgo.WithNumber("intensity",
			mcpgo.Description("Emotional intensity 0.0-1.0"),
		),
		mcpgo.WithString("decision_type",
			mcpgo.Description("Type of decision taken for the interaction"),
		),
		mcpgo.WithNumber("decision_confidence",
			mcpgo.Description("Decision confidence 0.0-1.0"),
		),
		mcpgo.WithNumber("satisfaction",
			mcpgo.Description("User satisfaction feedback 0.0-1.0"),
		),
		mcpgo.WithNumber("processing_time_ms",
			mcpgo.Description("Upstream processing latency in milliseconds"),
		),
	)
}

func buildRetrieveTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_retrieve",
		mcpgo.WithDescription("Retrieve memories similar to a query, ranked by similarity, importance, and recency, formatted within a token budget."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The query to retrieve memories for"),
		),
		mcpgo.WithNumber("max_results",
			mcpgo.Description("Maximum number of memories to return (default: 10)"),
		),
		mcpgo.WithNumber("budget",
			mcpgo.Description("Token budget for returned context (default: 2000)"),
		),
		mcpgo.WithString("tiers",
			mcpgo.Description("Comma-separated tiers to search: short_term, long_term, episodic, semantic, working (default: short_term,long_term,semantic)"),
		),
	)
}

func buildRecentTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_recent",
		mcpgo.WithDescription("Return the most recent interactions from the episodic log, newest first."),
		mcpgo.WithNumber("n",
			mcpgo.Description("Number of interactions to return (default: 10)"),
		),
	)
}

func buildStatusTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_status",
		mcpgo.WithDescription("Get memory status: per-tier record counts, consolidation queue depth, and last consolidation time."),
	)
}

func buildFactTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_fact",
		mcpgo.WithDescription("Store a standalone fact in semantic memory."),
		mcpgo.WithString("content",
			mcpgo.Required(),
			mcpgo.Description("The fact to remember"),
		),
		mcpgo.WithNumber("confidence",
			mcpgo.Description("Confidence score 0.0-1.0 (default: 0.9)"),
		),
		mcpgo.WithString("source",
			mcpgo.Description("Where the fact came from (default: mcp)"),
		),
	)
}

// --- tool handlers ---

// handleStore scores, embeds, and ingests one interaction.
func (s *Server) handleStore(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("engine is unavailable"), nil
	}

	input := req.GetString("input", "")
	if strings.TrimSpace(input) == "" {
		return mcpgo.NewToolResultError("input is required and must not be empty"), nil
	}

	in := models.Interaction{
		Input:            input,
		Response:         req.GetString("response", ""),
		SessionID:        req.GetString("session_id", ""),
		Source:           "mcp",
		ProcessingTimeMs: req.GetInt("processing_time_ms", 0),
	}

	if emotion := req.GetString("emotion", ""); emotion != "" {
		intensity := req.GetFloat("intensity", 0)
		if intensity < 0 || intensity > 1 {
			return mcpgo.NewToolResultError("intensity must be between 0.0 and 1.0"), nil
		}
		in.Emotion = &models.Emotion{Primary: emotion, Intensity: intensity}
	}
	if decisionType := req.GetString("decision_type", ""); decisionType != "" {
		confidence := req.GetFloat("decision_confidence", 0)
		if confidence < 0 || confidence > 1 {
			return mcpgo.NewToolResultError("decision_confidence must be between 0.0 and 1.0"), nil
		}
		in.Decision = &models.Decision{Type: decisionType, Confidence: confidence}
	}
	if satisfaction := req.GetFloat("satisfaction", -1); satisfaction >= 0 {
		if satisfaction > 1 {
			return mcpgo.NewToolResultError("satisfaction must be between 0.0 and 1.0"), nil
		}
		in.Feedback = &models.Feedback{Satisfaction: satisfaction}
	}

	id, warning, err := s.engine.Ingest(ctx, in)
	if err != nil {
		return mcpgo.NewToolResultErrorf("store failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: stored interaction", "id", id, "session_id", in.SessionID)

	result := map[string]any{
		"id":     id,
		"stored": true,
	}
	if warning != nil {
		result["warning"] = warning.Error()
	}
	return toolResultJSON(result)
}

// handleRetrieve runs a similarity search and formats the results within
// the token budget.
func (s *Server) handleRetrieve(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("engine is unavailable"), nil
	}

	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}

	budget := req.GetInt("budget", defaultRetrieveBudget)
	if budget <= 0 {
		budget = defaultRetrieveBudget
	}

	var tiers []models.Tier
	if raw := req.GetString("tiers", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			tier := models.Tier(strings.TrimSpace(part))
			if !tier.IsValid() {
				return mcpgo.NewToolResultErrorf("invalid tier %q: must be one of short_term, long_term, episodic, semantic, working", string(tier)), nil
			}
			tiers = append(tiers, tier)
		}
	}

	result, err := s.engine.Retrieve(ctx, query, retrieval.Options{
		MaxResults: req.GetInt("max_results", 0),
		Tiers:      tiers,
	})
	if err != nil {
		return mcpgo.NewToolResultErrorf("retrieve failed: %s", err.Error()), nil
	}

	entries := make([]string, 0, len(result.Memories))
	for _, view := range result.Memories {
		entries = append(entries, formatEntry(view))
	}
	output, count := tokenizer.FormatWithBudget(entries, budget)

	out := map[string]any{
		"context":      output,
		"memory_count": count,
		"total_found":  result.TotalFound,
	}
	if result.TimedOut {
		out["timed_out"] = true
	}
	return toolResultJSON(out)
}

// handleRecent returns the newest episodic records.
func (s *Server) handleRecent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("engine is unavailable"), nil
	}

	n := req.GetInt("n", defaultRecentLimit)
	if n <= 0 {
		n = defaultRecentLimit
	}

	views := s.engine.GetRecent(n)
	result := map[string]any{
		"memories": views,
		"count":    len(views),
	}
	return toolResultJSON(result)
}

// handleStatus returns tier occupancy and consolidation progress.
func (s *Server) handleStatus(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("engine is unavailable"), nil
	}
	return toolResultJSON(s.engine.Status())
}

// handleFact stores a standalone fact in semantic memory.
func (s *Server) handleFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("engine is unavailable"), nil
	}

	content := req.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcpgo.NewToolResultError("content is required and must not be empty"), nil
	}

	confidence := req.GetFloat("confidence", 0.9)
	if confidence < 0 || confidence > 1 {
		return mcpgo.NewToolResultError("confidence must be between 0.0 and 1.0"), nil
	}
	source := req.GetString("source", "mcp")

	id, err := s.engine.StoreFact(ctx, content, confidence, source)
	if err != nil {
		return mcpgo.NewToolResultErrorf("fact store failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: stored fact", "id", id)

	result := map[string]any{
		"id":     id,
		"stored": true,
	}
	return toolResultJSON(result)
}
