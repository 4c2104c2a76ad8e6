package ops

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/errors"
)

// Content formats accepted by Save.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	goldmark.WithParserOptions(
		parser.WithASTTransformers(util.Prioritized(linkNormalizer{}, 100)),
	),
)

// linkNormalizer gives bare-host link targets an https scheme, the same way
// links typed into the editor are treated.
type linkNormalizer struct{}

func (linkNormalizer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok || !isBareHost(string(link.Destination)) {
			return ast.WalkContinue, nil
		}
		if href, remove := box.NormalizeLink(string(link.Destination)); !remove {
			link.Destination = []byte(href)
		}
		return ast.WalkContinue, nil
	})
}

// isBareHost reports whether dest has no scheme and is not a relative or fragment link.
func isBareHost(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, ".") {
		return false
	}
	if i := strings.Index(dest, ":"); i >= 0 && !strings.Contains(dest[:i], "/") && !strings.Contains(dest[:i], ".") {
		return false // has a scheme
	}
	return true
}

// toHTML converts content in format to the HTML stored in a box.
func toHTML(content, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatHTML:
		return content, nil
	case FormatMarkdown, "md":
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(content), &buf); err != nil {
			return "", errors.NewInvalidRequest("markdown conversion failed: " + err.Error())
		}
		return strings.TrimSpace(buf.String()), nil
	default:
		return "", errors.NewInvalidRequest("format must be html or markdown")
	}
}
