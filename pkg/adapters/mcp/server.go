package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/canvas"
	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/domain"
)

// ScriptURI is the resource holding the wizard script.
const ScriptURI = "canvas://script"

// StepResponse is the structured output of canvas_step.
type StepResponse struct {
	ThreadID string                  `json:"thread_id" jsonschema_description:"The thread that was advanced"`
	Step     domain.PresentationStep `json:"step" jsonschema_description:"The step that is now active"`
	Answers  map[string]string       `json:"answers" jsonschema_description:"All answers recorded so far"`
	Complete bool                    `json:"complete" jsonschema_description:"True once the last step is active"`
}

// StateResponse is the structured output of canvas_state.
type StateResponse struct {
	State   *domain.WizardState      `json:"state" jsonschema_description:"The stored wizard state"`
	Started bool                     `json:"started" jsonschema_description:"False until the company name was given"`
	Step    *domain.PresentationStep `json:"step,omitempty" jsonschema_description:"The active step, absent before the first answer"`
}

// StepArgs are the arguments of canvas_step.
type StepArgs struct {
	ThreadID string `json:"thread_id"`
	Answer   string `json:"answer"`
}

// StateArgs are the arguments of canvas_state.
type StateArgs struct {
	ThreadID string `json:"thread_id"`
}

// Engine is the part of canvas.Engine the MCP tools need.
type Engine interface {
	Advance(ctx context.Context, threadID, answer string) (domain.PresentationStep, *domain.WizardState, error)
	State(ctx context.Context, threadID string) (*domain.WizardState, error)
	Step(state *domain.WizardState) (domain.PresentationStep, bool)
	Script() domain.Script
}

// Server exposes the wizard as MCP tools.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("canvas-mcp", strings.TrimSpace(canvas.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: canvas_step
	stepTool := mcp.NewTool("canvas_step",
		mcp.WithDescription("Record an answer for the thread's active step and move to the next one. The first answer is the company name."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread id")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Free text answer; may be empty")),
		mcp.WithOutputSchema[StepResponse](),
	)
	s.mcpServer.AddTool(stepTool, mcp.NewStructuredToolHandler(s.handleStep))

	// TOOL: canvas_state
	stateTool := mcp.NewTool("canvas_state",
		mcp.WithDescription("Read the wizard state of a thread without changing it."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread id")),
		mcp.WithOutputSchema[StateResponse](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleState))
}

func (s *Server) handleStep(ctx context.Context, _ mcp.CallToolRequest, args StepArgs) (StepResponse, error) {
	if strings.TrimSpace(args.ThreadID) == "" {
		return StepResponse{}, errors.New("thread_id is required")
	}

	step, state, err := s.engine.Advance(ctx, args.ThreadID, args.Answer)
	if err != nil {
		s.logger.Warn("mcp canvas_step failed", "thread_id", args.ThreadID, "err", err)
		return StepResponse{}, fmt.Errorf("advance failed: %w", err)
	}

	return StepResponse{
		ThreadID: args.ThreadID,
		Step:     step,
		Answers:  state.Answers,
		Complete: state.Completed(),
	}, nil
}

func (s *Server) handleState(ctx context.Context, _ mcp.CallToolRequest, args StateArgs) (StateResponse, error) {
	if strings.TrimSpace(args.ThreadID) == "" {
		return StateResponse{}, errors.New("thread_id is required")
	}

	state, err := s.engine.State(ctx, args.ThreadID)
	if err != nil {
		return StateResponse{}, fmt.Errorf("loading state: %w", err)
	}

	resp := StateResponse{State: state, Started: state.Started()}
	if step, ok := s.engine.Step(state); ok {
		resp.Step = &step
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: canvas://script
	s.mcpServer.AddResource(mcp.NewResource(ScriptURI, "Wizard Script",
		mcp.WithResourceDescription("The ordered steps of the business canvas wizard"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.engine.Script())
		if err != nil {
			return nil, fmt.Errorf("encoding script: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ScriptURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
