package domain

// MessageData is the render state of one Discord message: the accumulated
// text, its pages and the page currently on display. User messages carry
// only Content.
type MessageData struct {
	Content          string   `json:"content"`
	IsUserMessage    bool     `json:"isUserMessage"`
	Pages            []string `json:"pages,omitempty"`
	ModelName        string   `json:"modelName,omitempty"`
	CurrentPageIndex int      `json:"currentPageIndex"`
	Complete         bool     `json:"complete,omitempty"`

	// Cursor tracks where the last page starts while text is still being
	// appended. Finished messages never need it, so it is not persisted.
	Cursor PageCursor `json:"-"`
}

// PageCursor is the byte offset in Content where the last page begins and
// the code fence open at that point, if any.
type PageCursor struct {
	Offset    int
	FenceOpen bool
	FenceLang string
}

// CachedMessage ties MessageData to the Discord message it renders.
type CachedMessage struct {
	MessageID string      `json:"messageId"`
	ChannelID string      `json:"channelId"`
	Data      MessageData `json:"data"`
}

// Conversation is an ordered run of cached messages.
type Conversation struct {
	ID             string          `json:"id"`
	StartTimestamp int64           `json:"startTimestamp"`
	Messages       []CachedMessage `json:"messages"`
}

// BotState is the flat settings record restored on startup.
type BotState struct {
	MessageCount          int      `json:"messageCount"`
	LastKeepAlive         string   `json:"lastKeepAlive,omitempty"`
	LastUsedModel         string   `json:"lastUsedModel,omitempty"`
	LastSystemPrompt      string   `json:"lastSystemPrompt,omitempty"`
	LastTemperature       *float64 `json:"lastTemperature"`
	LastNumCtx            *int     `json:"lastNumCtx"`
	ActiveChannel         string   `json:"activeChannel,omitempty"`
	CurrentConversationID string   `json:"currentConversationId,omitempty"`
	RestoredConversation  string   `json:"restoredConversation,omitempty"`
	RestoredInstructions  string   `json:"restoredInstructions,omitempty"`
	ConversationCounter   int      `json:"conversationCounter"`
}

// Cache is the whole persisted document.
type Cache struct {
	Conversations map[string]*Conversation `json:"conversations"`
	State         BotState                 `json:"state"`
}

// NewCache returns an empty cache document.
func NewCache() *Cache {
	return &Cache{Conversations: map[string]*Conversation{}}
}
