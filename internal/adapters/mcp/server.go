// Package mcpadapter exposes the answer service as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
)

const (
	serverName    = "floraqa"
	serverVersion = "1.0.0"
)

type Server struct {
	answers ports.AnswerService
}

func New(answers ports.AnswerService) *Server {
	return &Server{answers: answers}
}

// MCPServer registers the tool set on a fresh MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Answer a question about medicinal plants. Pass session_id to continue a conversation."),
		mcp.WithString("question", mcp.Required(), mcp.Description("User question in Vietnamese")),
		mcp.WithString("label", mcp.Description("Identified plant name, if any")),
		mcp.WithString("session_id", mcp.Description("Conversation session id")),
	), s.handleAnswer)

	srv.AddTool(mcp.NewTool("reset_conversation",
		mcp.WithDescription("Clear the history of a conversation session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
	), s.handleReset)

	srv.AddTool(mcp.NewTool("session_stats",
		mcp.WithDescription("Report the number of active sessions and the idle timeout."),
	), s.handleSessionStats)

	return srv
}

// ServeStdio blocks serving the tool set over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.answers.Answer(ctx, domain.AnswerRequest{
		Question:  question,
		Label:     req.GetString("label", ""),
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		slog.Error("mcp_answer_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(result)
}

func (s *Server) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.answers.ResetSession(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(map[string]string{"status": "success", "session_id": sessionID})
}

func (s *Server) handleSessionStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.answers.SessionStats())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return err.Error()
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrIndexUnavailable):
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
