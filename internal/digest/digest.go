// Package digest turns qualifying stories into the prompt sent to the model.
package digest

import (
	"fmt"
	"strings"

	"github.com/deusflow/hndigest/internal/hackernews"
)

// Compose formats one line per story, keeping the input order.
func Compose(stories []hackernews.Story) string {
	var b strings.Builder
	for i, s := range stories {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatStory(s))
	}
	return b.String()
}

func formatStory(s hackernews.Story) string {
	return fmt.Sprintf("- %s (Score: %d) - %s", s.Title, s.Score, s.URL)
}
