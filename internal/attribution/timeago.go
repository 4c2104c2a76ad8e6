package attribution

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date used once an edit is 30 days or older.
const DateLayout = "1/2/2006"

// TimeAgo describes how long before now ts happened.
// It depends only on its arguments.
func TimeAgo(ts, now time.Time) string {
	diff := now.Sub(ts)
	secs := int64(diff / time.Second)
	mins := secs / 60
	hours := mins / 60
	days := hours / 24

	switch {
	case secs < 60:
		return "just now"
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	case days < 30:
		return fmt.Sprintf("%dd ago", days)
	}
	return ts.In(now.Location()).Format(DateLayout)
}

// Describe renders "{editor} • {time ago}" for a, or just the editor when
// the attribution has no timestamp.
func Describe(a Attribution, now time.Time) string {
	if a.EditedAt == nil {
		return EditorOrAnonymous(a.EditorName)
	}
	return fmt.Sprintf("%s • %s", EditorOrAnonymous(a.EditorName), TimeAgo(*a.EditedAt, now))
}
