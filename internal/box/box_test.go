package box

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pied/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		count   int
		wantErr bool
	}{
		{"first", 0, 999, false},
		{"last", 998, 999, false},
		{"past end", 999, 999, true},
		{"negative", -1, 999, true},
		{"default count", 998, 0, false},
		{"small page", 3, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id, tt.count)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%d, %d) error = %v, wantErr %v", tt.id, tt.count, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("Validate(%d, %d) code = %v, want INVALID_REQUEST", tt.id, tt.count, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	id, err := Parse(" 41 ", 999)
	require.NoError(t, err)
	assert.Equal(t, 41, id)

	_, err = Parse("forty", 999)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Parse("1000", 999)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLabelName(t *testing.T) {
	assert.Equal(t, "Pied 1", Label(0))
	assert.Equal(t, "Pied 999", Label(998))
	assert.Equal(t, "0", Name(0))
	assert.Equal(t, "998", Name(998))
}

func TestLint(t *testing.T) {
	res := Lint(LintInput{Content: "<p>héllo</p>", MaxChars: 12})
	assert.True(t, res.Valid)
	assert.Equal(t, 12, res.ActualChars)

	res = Lint(LintInput{Content: strings.Repeat("é", 13), MaxChars: 12})
	assert.False(t, res.Valid)
	assert.True(t, res.TooLarge)
	assert.Equal(t, 13, res.ActualChars)

	res = Lint(LintInput{Content: strings.Repeat("x", 100000)})
	assert.True(t, res.Valid)

	// invalid UTF-8 is still saveable; the field stores it unencoded
	res = Lint(LintInput{Content: "bad \xff", MaxChars: 12})
	assert.True(t, res.Valid)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hi</p>", "Hi"},
		{"<p>one</p><p>two</p>", "one two"},
		{"<b>fish &amp; chips</b>", "fish & chips"},
		{"  plain\n\ttext ", "plain text"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("<p>short</p>", 10))
	assert.Equal(t, "héllo…", Preview("<p>héllo world</p>", 5))
	assert.Equal(t, "hello…", Preview("hello world", 6))
}

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		in         string
		wantHref   string
		wantRemove bool
	}{
		{"", "", true},
		{"   ", "", true},
		{"example.com", "https://example.com", false},
		{"http://example.com", "http://example.com", false},
		{"https://example.com/a?b=c", "https://example.com/a?b=c", false},
		{"ftp://example.com", "https://ftp://example.com", false},
	}
	for _, tt := range tests {
		href, remove := NormalizeLink(tt.in)
		if href != tt.wantHref || remove != tt.wantRemove {
			t.Errorf("NormalizeLink(%q) = (%q, %v), want (%q, %v)", tt.in, href, remove, tt.wantHref, tt.wantRemove)
		}
	}
}
