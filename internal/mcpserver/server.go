package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/documents"
	"github.com/documcp/api/internal/orchestrator"
)

// Service exposes document generation as MCP tools and prompts, so editor
// agents can call the generator directly over stdio instead of HTTP.
type Service struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// New creates the MCP service over an orchestrator.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Service {
	return &Service{orch: orch, logger: logger}
}

// Server builds the MCP server with every tool and prompt registered.
func (s *Service) Server() *server.MCPServer {
	srv := server.NewMCPServer("documcp", "0.1.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("generate_documents",
		mcp.WithDescription("Generate project documentation (PRD, What-is-this, README) from a project description"),
		mcp.WithString("input_text", mcp.Required(), mcp.Description("Project description or requirements")),
		mcp.WithString("project_name", mcp.Description("Name of the project (optional)")),
		mcp.WithArray("document_types", mcp.Description("Types of documents to generate (default: all types)")),
	), s.handleGenerateDocuments)

	srv.AddTool(mcp.NewTool("generate_prd",
		mcp.WithDescription("Generate a Product Requirements Document (PRD) from project description"),
		mcp.WithString("input_text", mcp.Required(), mcp.Description("Project description or requirements")),
		mcp.WithString("project_name", mcp.Description("Name of the project (optional)")),
	), s.singleDocumentHandler(documents.TypePRD))

	srv.AddTool(mcp.NewTool("generate_readme",
		mcp.WithDescription("Generate a README.md file from project description"),
		mcp.WithString("input_text", mcp.Required(), mcp.Description("Project description or requirements")),
		mcp.WithString("project_name", mcp.Description("Name of the project (optional)")),
	), s.singleDocumentHandler(documents.TypeReadme))

	srv.AddTool(mcp.NewTool("generate_overview",
		mcp.WithDescription("Generate a project overview (What-is-this) document from project description"),
		mcp.WithString("input_text", mcp.Required(), mcp.Description("Project description or requirements")),
		mcp.WithString("project_name", mcp.Description("Name of the project (optional)")),
	), s.singleDocumentHandler(documents.TypeWhatIsThis))

	srv.AddPrompt(mcp.NewPrompt("project_documentation",
		mcp.WithPromptDescription("Generate comprehensive project documentation including PRD, overview, and README"),
		mcp.WithArgument("project_description", mcp.ArgumentDescription("Brief description of your project"), mcp.RequiredArgument()),
		mcp.WithArgument("project_name", mcp.ArgumentDescription("Name of your project")),
	), s.handleProjectDocumentationPrompt)

	srv.AddPrompt(mcp.NewPrompt("prd_template",
		mcp.WithPromptDescription("Generate a Product Requirements Document template"),
		mcp.WithArgument("project_description", mcp.ArgumentDescription("Project requirements and description"), mcp.RequiredArgument()),
		mcp.WithArgument("project_name", mcp.ArgumentDescription("Name of your project")),
	), s.handlePRDTemplatePrompt)

	return srv
}

func (s *Service) handleGenerateDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := req.RequireString("input_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectName := req.GetString("project_name", "")

	typeNames := req.GetStringSlice("document_types", nil)
	var types []documents.DocumentType
	if len(typeNames) == 0 {
		types = documents.AllTypes()
	} else {
		for _, n := range typeNames {
			types = append(types, documents.DocumentType(n))
		}
	}

	genReq, err := documents.NewRequest(input, projectName, types)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.orch.Orchestrate(ctx, genReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	succeeded := 0
	for _, out := range result.Outcomes {
		if out.Status == documents.StatusSucceeded {
			succeeded++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Document Generation Complete\n\nGenerated %d of %d documents in %.2f seconds\n\n",
		succeeded, len(result.Outcomes), result.Elapsed.Seconds())
	for _, out := range result.Outcomes {
		if out.Status == documents.StatusSucceeded {
			fmt.Fprintf(&sb, "## %s\n\n%s\n\n---\n", typeTitle(out.Type), out.Content)
		} else {
			fmt.Fprintf(&sb, "## %s\n\nGeneration failed: %s\n\n---\n", typeTitle(out.Type), out.Reason)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// singleDocumentHandler binds one document type to a tool handler.
func (s *Service) singleDocumentHandler(docType documents.DocumentType) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("input_text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		projectName := req.GetString("project_name", "")

		genReq, err := documents.NewRequest(input, projectName, []documents.DocumentType{docType})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := s.orch.Orchestrate(ctx, genReq)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out := result.Outcomes[0]
		if out.Status != documents.StatusSucceeded {
			return mcp.NewToolResultError(fmt.Sprintf("generation failed: %s", out.Reason)), nil
		}
		return mcp.NewToolResultText(out.Content), nil
	}
}

func (s *Service) handleProjectDocumentationPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	desc := req.Params.Arguments["project_description"]
	name := req.Params.Arguments["project_name"]
	if name == "" {
		name = "My Project"
	}

	text := fmt.Sprintf("Please generate comprehensive documentation for my project '%s'. "+
		"Here's the project description: %s\n\n"+
		"I need a complete set of documentation including:\n"+
		"1. Product Requirements Document (PRD)\n"+
		"2. Project Overview (What-is-this)\n"+
		"3. README.md file\n\n"+
		"Use the generate_documents tool to create all three document types.", name, desc)

	return mcp.NewGetPromptResult("Generate comprehensive project documentation", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}

func (s *Service) handlePRDTemplatePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	desc := req.Params.Arguments["project_description"]
	name := req.Params.Arguments["project_name"]
	if name == "" {
		name = "My Project"
	}

	text := fmt.Sprintf("Please generate a Product Requirements Document for '%s'. "+
		"Project description: %s\n\n"+
		"Use the generate_prd tool to create a comprehensive PRD.", name, desc)

	return mcp.NewGetPromptResult("Generate a Product Requirements Document", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}

// typeTitle renders a document type as a section heading ("what_is_this"
// becomes "What Is This").
func typeTitle(t documents.DocumentType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
