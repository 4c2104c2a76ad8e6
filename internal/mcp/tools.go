package mcp

import "github.com/mark3labs/mcp-go/mcp"

var boxFetchToolDef = mcp.NewTool("box_fetch",
	mcp.WithDescription("Read a box: its content (HTML), label, last editor and how long ago it was edited. "+
		"Falls back to the local cached copy when the relay does not answer in time (from_cache=true)."),
	mcp.WithNumber("box", mcp.Required(), mcp.Description("Box id, 0-based (box 0 is labelled \"Pied 1\")")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var boxSaveToolDef = mcp.NewTool("box_save",
	mcp.WithDescription("Replace a box's content. Last write wins: this overwrites whatever is there. "+
		"Records the editor name and time alongside the content."),
	mcp.WithNumber("box", mcp.Required(), mcp.Description("Box id, 0-based")),
	mcp.WithString("content", mcp.Required(), mcp.Description("New content")),
	mcp.WithString("format", mcp.Description("Content format (default html)"), mcp.Enum("html", "markdown")),
	mcp.WithString("editor", mcp.Description("Editor name to record (default: the local profile name)")),
	mcp.WithDestructiveHintAnnotation(true),
)

var profileGetToolDef = mcp.NewTool("profile_get",
	mcp.WithDescription("Return the local display name used as the editor for saves."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var profileSetToolDef = mcp.NewTool("profile_set",
	mcp.WithDescription("Set the local display name (max 20 characters; blank resets to Anonymous)."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
)
