// Package render splits streamed model output into Discord-sized pages and
// builds the view shown for the current page.
package render

import (
	"strings"
	"unicode"

	"discord-ollama/internal/domain"
)

const (
	fence = "```"

	// DefaultCharacterLimit matches the default page size of the bot.
	DefaultCharacterLimit = 1500
)

// Paginator appends generated text to the pages of a message. A page never
// exceeds Limit characters plus a closing fence line, unless it holds a run
// that cannot be cut anywhere legal.
type Paginator struct {
	Limit int
}

// NewPaginator returns a Paginator, falling back to DefaultCharacterLimit
// for non-positive limits.
func NewPaginator(limit int) Paginator {
	if limit <= 0 {
		limit = DefaultCharacterLimit
	}
	return Paginator{Limit: limit}
}

// Append adds fragment to the accumulated content of md and re-paginates
// from the start of the last page. Earlier pages are never revisited.
func (p Paginator) Append(md *domain.MessageData, fragment string) {
	if fragment == "" {
		return
	}
	md.Content += fragment
	p.repaginate(md)
}

func (p Paginator) repaginate(md *domain.MessageData) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultCharacterLimit
	}

	cur := md.Cursor
	done := md.Pages
	if len(done) > 0 {
		done = done[:len(done)-1]
	}
	if cur.Offset > len(md.Content) {
		cur, done = domain.PageCursor{}, nil
	}

	src := []rune(md.Content[cur.Offset:])
	pages, state, start := paginate(src, fenceInfo{open: cur.FenceOpen, lang: cur.FenceLang}, limit)

	md.Pages = append(done, pages...)
	md.Cursor = domain.PageCursor{
		Offset:    cur.Offset + len(string(src[:start])),
		FenceOpen: state.open,
		FenceLang: state.lang,
	}
}

// fenceInfo is the code fence open at some position of the text.
type fenceInfo struct {
	open bool
	lang string
}

// reopenLine is the line a page starts with when a fence is open at its top.
func (f fenceInfo) reopenLine() string {
	if !f.open {
		return ""
	}
	return fence + f.lang + "\n"
}

// paginate lays out src, which begins with the fence state start, as pages.
// It returns the pages together with the fence state and offset (in runes)
// where the last one begins.
func paginate(src []rune, start fenceInfo, limit int) (pages []string, last fenceInfo, lastStart int) {
	s := skipSpace(src, 0)
	end := len(src)
	for end > s && unicode.IsSpace(src[end-1]) {
		end--
	}

	state := start
	for {
		prefix := state.reopenLine()
		budget := limit - len([]rune(prefix))
		if end-s <= budget {
			pages = append(pages, strings.TrimRightFunc(prefix+string(src[s:end]), unicode.IsSpace))
			return pages, state, s
		}

		c, ok := chooseCut(src, s, end, s+budget, state)
		if !ok {
			pages = append(pages, strings.TrimRightFunc(prefix+string(src[s:end]), unicode.IsSpace))
			return pages, state, s
		}

		head := strings.TrimRightFunc(string(src[s:c.at]), unicode.IsSpace)
		if c.state.open {
			head += "\n" + fence
		}
		pages = append(pages, prefix+head)
		state = c.state
		s = skipSpace(src, c.at)
	}
}

type cut struct {
	at    int
	state fenceInfo
}

// chooseCut finds where the page starting at s ends. In order of preference:
// the last sentence end, line end or closing fence at or before last, the
// last legal position at or before last, and the first legal position after
// it. Cuts always leave text before end on the next page.
func chooseCut(src []rune, s, end, last int, state fenceInfo) (cut, bool) {
	if s >= end {
		return cut{}, false
	}
	w := fenceWalker{src: src, end: end, fenceInfo: state, lineDone: true, body: true}

	var boundary, fallback cut
	haveBoundary, haveFallback := false, false
	for i := w.step(s); i < end; i = w.step(i) {
		if !w.legal(i) {
			continue
		}
		c := cut{at: i, state: w.fenceInfo}
		if i > last {
			switch {
			case haveBoundary:
				return boundary, true
			case haveFallback:
				return fallback, true
			}
			return c, true
		}
		fallback, haveFallback = c, true
		if w.justClosed || strings.ContainsRune(".!?\n", src[i-1]) {
			boundary, haveBoundary = c, true
		}
	}

	switch {
	case haveBoundary:
		return boundary, true
	case haveFallback:
		return fallback, true
	}
	return cut{}, false
}

// fenceWalker tracks fences while reading a page's source left to right.
type fenceWalker struct {
	src []rune
	end int
	fenceInfo

	// lineDone is set once the newline ending the opening fence line is read,
	// body once code follows it.
	lineDone   bool
	body       bool
	justClosed bool
}

// step consumes the fence marker or rune at i and returns the next position.
func (w *fenceWalker) step(i int) int {
	next := i + 1
	switch {
	case i+len(fence) <= w.end && string(w.src[i:i+len(fence)]) == fence:
		next = i + len(fence)
		if w.open {
			w.open = false
			w.justClosed = true
			break
		}
		for next < w.end && isWordRune(w.src[next]) {
			next++
		}
		w.fenceInfo = fenceInfo{open: true, lang: string(w.src[i+len(fence) : next])}
		w.lineDone, w.body, w.justClosed = false, false, false
	case w.open && !w.lineDone:
		w.lineDone = w.src[i] == '\n'
		w.justClosed = false
	default:
		if w.open && !unicode.IsSpace(w.src[i]) {
			w.body = true
		}
		w.justClosed = false
	}
	return next
}

// legal reports whether a page may end right before src[i]. A cut may not
// split a backtick run, fall on an opening fence line, leave a code block
// without code, or leave the next page starting with the closing fence.
func (w *fenceWalker) legal(i int) bool {
	if w.src[i-1] == '`' && w.src[i] == '`' {
		return false
	}
	if !w.open {
		return true
	}
	if !w.lineDone || !w.body {
		return false
	}
	for _, r := range w.src[i:w.end] {
		if !unicode.IsSpace(r) {
			return r != '`'
		}
	}
	return true
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && unicode.IsSpace(src[i]) {
		i++
	}
	return i
}

// fenceState walks the fence markers of text in order and reports whether
// text ends inside a code block, together with the language tag of the most
// recent opening fence.
func fenceState(text string) (open bool, lang string) {
	rest := text
	for {
		i := strings.Index(rest, fence)
		if i < 0 {
			return open, lang
		}
		rest = rest[i+len(fence):]
		if open {
			open = false
			continue
		}
		open = true
		lang = leadingWord(rest)
		rest = rest[len(lang):]
	}
}

func leadingWord(s string) string {
	n := 0
	for n < len(s) && isWordRune(rune(s[n])) {
		n++
	}
	return s[:n]
}

func isWordRune(r rune) bool {
	return r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
