package tools

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"devteam/pkg/workspace"
)

// AgentContext carries the per-session dependencies tools need. Tools are
// constructed lazily per provider so two sessions never share a workspace.
type AgentContext struct {
	Workspace    *workspace.Workspace
	HTTPClient   *http.Client
	SearchAPIKey string
	SearchCSEID  string
}

// ToolFactory creates a tool instance configured for a specific agent context.
type ToolFactory func(ctx AgentContext) (Tool, error)

// ToolMeta contains metadata about a tool for documentation and discovery.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry. Registration
// happens in init; the first Provider seals it.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // factory pattern requires a global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	globalRegistry.tools[name] = toolDescriptor{
		meta:    *meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations. Called automatically when the
// first Provider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools, sorted by name.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Provider creates and manages tool instances for one agent role within
// one session. Only names in the allowlist resolve.
type Provider struct {
	ctx      AgentContext
	tools    map[string]Tool
	allowSet map[string]struct{}
	mu       sync.Mutex
}

// NewProvider creates a Provider for the given context and allowed tools.
// Automatically seals the global registry on first use.
func NewProvider(ctx AgentContext, allowedTools []string) *Provider {
	Seal()

	if ctx.HTTPClient == nil {
		ctx.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowSet[name] = struct{}{}
	}

	return &Provider{
		ctx:      ctx,
		tools:    make(map[string]Tool),
		allowSet: allowSet,
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *Provider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allowSet[name]; !ok {
		return nil, fmt.Errorf("tool '%s' not allowed in this context", name)
	}

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}

	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}

	p.tools[name] = tool
	return tool, nil
}

// Definitions returns the LLM-facing definitions of all allowed tools,
// sorted by name so prompts are deterministic.
func (p *Provider) Definitions() ([]ToolDefinition, error) {
	names := make([]string, 0, len(p.allowSet))
	for name := range p.allowSet {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, tool.Definition())
	}
	return defs, nil
}

// PromptDocumentation renders the allowed tools' documentation for
// inclusion in a system prompt.
func (p *Provider) PromptDocumentation() string {
	names := make([]string, 0, len(p.allowSet))
	for name := range p.allowSet {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for _, name := range names {
		tool, err := p.Get(name)
		if err != nil {
			continue
		}
		doc.WriteString(tool.PromptDocumentation())
		doc.WriteString("\n")
	}
	return doc.String()
}

// TOOL FACTORY FUNCTIONS

func createFileWriteTool(ctx AgentContext) (Tool, error) {
	if ctx.Workspace == nil {
		return nil, fmt.Errorf("file_write tool requires a workspace")
	}
	return NewFileWriteTool(ctx.Workspace), nil
}

func createFileReadTool(ctx AgentContext) (Tool, error) {
	if ctx.Workspace == nil {
		return nil, fmt.Errorf("file_read tool requires a workspace")
	}
	return NewFileReadTool(ctx.Workspace, 0), nil
}

func createWebSearchTool(ctx AgentContext) (Tool, error) {
	return NewWebSearchTool(ctx.HTTPClient, ctx.SearchAPIKey, ctx.SearchCSEID), nil
}

func createTerminalTool(_ AgentContext) (Tool, error) {
	return NewTerminalTool(), nil
}

//nolint:gochecknoinits // factory pattern requires init() for tool registration
func init() {
	Register(ToolFileWrite, createFileWriteTool, &ToolMeta{
		Name:        ToolFileWrite,
		Description: "Write a project file into the session workspace",
		InputSchema: NewFileWriteTool(nil).Definition().InputSchema,
	})

	Register(ToolFileRead, createFileReadTool, &ToolMeta{
		Name:        ToolFileRead,
		Description: "Read a previously written file from the session workspace",
		InputSchema: NewFileReadTool(nil, 0).Definition().InputSchema,
	})

	Register(ToolWebSearch, createWebSearchTool, &ToolMeta{
		Name:        ToolWebSearch,
		Description: "Search the web for technical reference material",
		InputSchema: NewWebSearchTool(nil, "", "").Definition().InputSchema,
	})

	// Registered without appearing in any role's allowlist.
	Register(ToolTerminal, createTerminalTool, &ToolMeta{
		Name:        ToolTerminal,
		Description: "Execute a shell command (disabled)",
		InputSchema: NewTerminalTool().Definition().InputSchema,
	})
}
