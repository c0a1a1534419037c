package domain

// GenerateRequest is a single prompt sent to the model backend.
type GenerateRequest struct {
	Model       string
	Prompt      string
	System      string
	Context     []int
	Temperature float64
	NumCtx      int
	KeepAlive   string
}

// Fragment is one event of a generation stream. Context is the opaque
// continuation token and is usually only present on the final event.
type Fragment struct {
	Text    string
	Context []int
	Done    bool
}

// ChatSettings are the model parameters applied to every prompt.
type ChatSettings struct {
	Model       string
	System      string
	Temperature float64
	NumCtx      int
	KeepAlive   string
}
