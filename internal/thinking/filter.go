// Package thinking implements the content filter that separates a model's
// internal <think>...</think> reasoning from the text a user should see,
// both for fully-accumulated text and incrementally across a stream of
// chunks (spec.md §4.6, §9).
package thinking

import (
	"regexp"
	"strings"
)

var thinkSpan = regexp.MustCompile(`(?is)<think>(.*?)</think>`)

var collapseNewlines = regexp.MustCompile(`\n{3,}`)

// Filter splits s into (visible, thinking). thinking is the concatenation
// of every <think>...</think> span's contents, in order, separated by a
// blank line. visible is s with those spans removed, runs of 3+ newlines
// collapsed to 2, and leading/trailing newlines trimmed.
//
// Applying Filter to an already-filtered string is the identity: a string
// with no <think> spans passes through visible unchanged (modulo the same
// newline-collapsing normalization, which is itself idempotent).
func Filter(s string) (visible string, thought string) {
	var thoughts []string
	for _, m := range thinkSpan.FindAllStringSubmatch(s, -1) {
		thoughts = append(thoughts, strings.TrimSpace(m[1]))
	}

	visible = thinkSpan.ReplaceAllString(s, "\n\n")
	visible = collapseNewlines.ReplaceAllString(visible, "\n\n")
	visible = strings.Trim(visible, "\n")

	thought = strings.Join(thoughts, "\n\n")
	return visible, thought
}

// StreamState tracks open/closed <think> status across a sequence of
// incoming chunks, per the §9 design note: track an open-tag boolean,
// emit visible text only while closed, and flush the accumulated internal
// buffer to the thinking channel on close.
type StreamState struct {
	inThink bool
	pending string // unresolved partial tag fragment carried to next chunk
}

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Feed processes one incoming chunk and returns the portion that should be
// emitted as visible text and the portion that should be emitted as
// thinking text. Tag boundaries that straddle chunk edges are handled by
// buffering a small amount of trailing text that could be the start of a
// tag.
func (s *StreamState) Feed(chunk string) (visible string, thought string) {
	buf := s.pending + chunk
	s.pending = ""

	for {
		if !s.inThink {
			idx := strings.Index(buf, openTag)
			if idx == -1 {
				// Keep back enough trailing bytes to catch a split tag.
				keep := maxTagOverlap(buf, openTag)
				visible += buf[:len(buf)-keep]
				s.pending = buf[len(buf)-keep:]
				return visible, thought
			}
			visible += buf[:idx]
			buf = buf[idx+len(openTag):]
			s.inThink = true
			continue
		}

		idx := strings.Index(buf, closeTag)
		if idx == -1 {
			keep := maxTagOverlap(buf, closeTag)
			thought += buf[:len(buf)-keep]
			s.pending = buf[len(buf)-keep:]
			return visible, thought
		}
		thought += buf[:idx]
		buf = buf[idx+len(closeTag):]
		s.inThink = false
	}
}

// maxTagOverlap returns how many trailing bytes of buf could be an
// incomplete prefix of tag, so the caller can withhold them until the next
// chunk arrives.
func maxTagOverlap(buf, tag string) int {
	max := len(tag) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(buf, tag[:n]) {
			return n
		}
	}
	return 0
}

// Flush returns any buffered partial tag text as visible (it never became
// a real tag) and resets the state. Call at stream end.
func (s *StreamState) Flush() string {
	rest := s.pending
	s.pending = ""
	s.inThink = false
	return rest
}
