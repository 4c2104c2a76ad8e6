package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
	"github.com/hpungsan/pied/internal/profile"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	Box     int
	Content string
	Format  string  // "html" (default) or "markdown"
	Editor  *string // default: the stored profile name
}

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	Box      int              `json:"box"`
	Label    string           `json:"label"`
	Status   field.SaveStatus `json:"status"`
	Editor   string           `json:"editor"`
	EditedAt string           `json:"edited_at"`
	Chars    int              `json:"chars"`
	Encoded  bool             `json:"encoded"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Save writes content to a box. When a remote write fails the output is
// still returned alongside the REMOTE_WRITE_FAILED error, to show what landed.
func Save(ctx context.Context, store field.Store, database *sql.DB, cfg *config.Config, input SaveInput) (*SaveOutput, error) {
	if err := box.Validate(input.Box, cfg.BoxCount); err != nil {
		return nil, err
	}

	html, err := toHTML(input.Content, input.Format)
	if err != nil {
		return nil, err
	}

	lint := box.Lint(box.LintInput{Content: html, MaxChars: cfg.ContentMaxChars})
	if !lint.Valid {
		return nil, errors.NewContentTooLarge(lint.MaxChars, lint.ActualChars)
	}

	editor, err := resolveEditor(ctx, database, input.Editor)
	if err != nil {
		return nil, err
	}

	f, err := openBox(ctx, store, database, cfg, input.Box, nil)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, saveErr := f.Save(ctx, html, editor)
	if res == nil {
		return nil, saveErr
	}

	out := &SaveOutput{
		Box:      input.Box,
		Label:    box.Label(input.Box),
		Status:   res.Status,
		Editor:   res.Attribution.EditorName,
		EditedAt: attribution.FormatTime(*res.Attribution.EditedAt),
		Chars:    lint.ActualChars,
		Encoded:  res.Encoded,
	}
	if !res.Encoded {
		out.Warnings = append(out.Warnings, "content is not valid UTF-8 and was stored unencoded")
	}
	if res.CacheErr != nil {
		out.Warnings = append(out.Warnings, "local cache not updated")
	}
	return out, saveErr
}

// resolveEditor returns the explicit editor name or the stored profile name.
func resolveEditor(ctx context.Context, database *sql.DB, editor *string) (string, error) {
	if editor != nil && strings.TrimSpace(*editor) != "" {
		return attribution.EditorOrAnonymous(*editor), nil
	}
	if database == nil {
		return attribution.Anonymous, nil
	}
	return profile.Get(ctx, database)
}
