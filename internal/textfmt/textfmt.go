// Package textfmt holds the stateless display helpers used by the templates:
// hashtag emphasis, relative times and human-readable sizes.
package textfmt

import (
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
)

// Segment is a run of text that renders either plain or as a hashtag.
type Segment struct {
	Text    string
	Hashtag bool
}

// Tokenize splits text into alternating word and whitespace runs, keeping the
// whitespace so that joining every Segment.Text reproduces the input. Words
// beginning with '#' are marked as hashtags.
func Tokenize(text string) []Segment {
	if text == "" {
		return nil
	}

	var segs []Segment
	var b strings.Builder
	inSpace := false
	flush := func() {
		if b.Len() == 0 {
			return
		}
		s := b.String()
		segs = append(segs, Segment{
			Text:    s,
			Hashtag: !inSpace && strings.HasPrefix(s, "#"),
		})
		b.Reset()
	}

	for i, r := range text {
		space := unicode.IsSpace(r)
		if i > 0 && space != inSpace {
			flush()
		}
		inSpace = space
		b.WriteRune(r)
	}
	flush()
	return segs
}

// Hashtags returns the hashtag words in text, in order of appearance.
func Hashtags(text string) []string {
	var tags []string
	for _, s := range Tokenize(text) {
		if s.Hashtag {
			tags = append(tags, s.Text)
		}
	}
	return tags
}

// TimeAgo renders t relative to now ("3 hours ago"). A zero time renders as
// "Just now", which is what the feed shows for freshly submitted leads.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "Just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Size renders a byte count for attachment lists.
func Size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
