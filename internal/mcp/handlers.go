package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
	"github.com/hpungsan/pied/internal/ops"
	"github.com/hpungsan/pied/internal/profile"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store field.Store
	db    *sql.DB
	cfg   *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store field.Store, db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{store: store, db: db, cfg: cfg}
}

// BoxFetchRequest represents the arguments for box_fetch.
type BoxFetchRequest struct {
	Box *int `json:"box"`
}

// BoxSaveRequest represents the arguments for box_save.
type BoxSaveRequest struct {
	Box     *int    `json:"box"`
	Content *string `json:"content"`
	Format  string  `json:"format,omitempty"`
	Editor  *string `json:"editor,omitempty"`
}

// ProfileSetRequest represents the arguments for profile_set.
type ProfileSetRequest struct {
	Name string `json:"name"`
}

// ProfileOutput is returned by profile_get and profile_set.
type ProfileOutput struct {
	Name string `json:"name"`
}

// HandleBoxFetch handles the box_fetch tool.
func (h *Handlers) HandleBoxFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[BoxFetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if r.Box == nil {
		return errorResult(errors.NewInvalidRequest("box is required")), nil
	}

	result, err := ops.Fetch(ctx, h.store, h.db, h.cfg, ops.FetchInput{Box: *r.Box})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBoxSave handles the box_save tool.
func (h *Handlers) HandleBoxSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[BoxSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if r.Box == nil {
		return errorResult(errors.NewInvalidRequest("box is required")), nil
	}
	if r.Content == nil {
		return errorResult(errors.NewInvalidRequest("content is required")), nil
	}

	result, err := ops.Save(ctx, h.store, h.db, h.cfg, ops.SaveInput{
		Box:     *r.Box,
		Content: *r.Content,
		Format:  r.Format,
		Editor:  r.Editor,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProfileGet handles the profile_get tool.
func (h *Handlers) HandleProfileGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := profile.Get(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ProfileOutput{Name: name})
}

// HandleProfileSet handles the profile_set tool.
func (h *Handlers) HandleProfileSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ProfileSetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	name, err := profile.Set(ctx, h.db, r.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ProfileOutput{Name: name})
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var pErr *errors.PiedError
	if stderrors.As(err, &pErr) {
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": pErr.Message,
			"status":  pErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
