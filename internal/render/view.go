package render

import (
	"time"

	"discord-ollama/internal/domain"
)

// Direction is a pagination request. Its value doubles as the button custom id.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// ParseDirection maps a button custom id to a Direction.
func ParseDirection(customID string) (Direction, bool) {
	switch Direction(customID) {
	case Previous, Next:
		return Direction(customID), true
	default:
		return "", false
	}
}

const unknownModel = "Unknown Model"

var spinnerFrames = []string{"+", "x", "*"}

// View is what a message displays for its current page.
type View struct {
	Description  string
	Footer       string
	PrevDisabled bool
	NextDisabled bool
}

// NewState returns the render state of a generation that has not produced
// any text yet.
func NewState(model string) *domain.MessageData {
	return &domain.MessageData{
		Pages:     []string{""},
		ModelName: model,
	}
}

// CurrentPage returns the page on display, or "" if there is none.
func CurrentPage(md *domain.MessageData) string {
	if md == nil || md.CurrentPageIndex < 0 || md.CurrentPageIndex >= len(md.Pages) {
		return ""
	}
	return md.Pages[md.CurrentPageIndex]
}

// Navigate moves the current page one step in dir and reports whether it
// moved. Requests past either end are ignored.
func Navigate(md *domain.MessageData, dir Direction) bool {
	switch {
	case dir == Previous && md.CurrentPageIndex > 0:
		md.CurrentPageIndex--
	case dir == Next && md.CurrentPageIndex < len(md.Pages)-1:
		md.CurrentPageIndex++
	default:
		return false
	}
	return true
}

// Finalize marks the generation complete and rewinds the display to the
// first page. A fence the model never closed is closed on the last page.
func Finalize(md *domain.MessageData) {
	md.Complete = true
	md.CurrentPageIndex = 0
	if n := len(md.Pages); n > 0 {
		if open, _ := fenceState(md.Pages[n-1]); open {
			md.Pages[n-1] += "\n" + fence
		}
	}
}

// NewView builds the view of md. Incomplete messages get a spinner frame in
// the footer that advances every 500ms.
func NewView(md *domain.MessageData, now time.Time) View {
	v := PageView(md)
	if v.Footer == "" {
		v.Footer = unknownModel
	}
	if !md.Complete && !md.IsUserMessage {
		frame := (now.UnixMilli() / 500) % int64(len(spinnerFrames))
		v.Footer += " " + spinnerFrames[frame]
	}
	return v
}

// PageView builds the view shown after a page button press: the model name
// alone as footer, without status.
func PageView(md *domain.MessageData) View {
	pageCount := len(md.Pages)
	if pageCount == 0 {
		pageCount = 1
	}
	return View{
		Description:  CurrentPage(md),
		Footer:       md.ModelName,
		PrevDisabled: md.CurrentPageIndex <= 0,
		NextDisabled: md.CurrentPageIndex >= pageCount-1,
	}
}
