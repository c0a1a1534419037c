// Package ollama is the generation source of the bot: a small client for the
// streaming /api/generate endpoint of an Ollama-compatible server.
package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"discord-ollama/internal/domain"
)

// generateEvent is one NDJSON line of a /api/generate stream.
type generateEvent struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Context  []int  `json:"context,omitempty"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// UpstreamError is an error event reported inside an otherwise successful stream.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "ollama: upstream error: " + e.Message
}

// decodeStream reads NDJSON events from r and hands them to fn in order.
// Malformed lines are skipped.
func decodeStream(r io.Reader, fn func(domain.Fragment) error) error {
	reader := bufio.NewReader(r)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var ev generateEvent
			if err := json.Unmarshal(line, &ev); err == nil {
				if ev.Error != "" {
					return &UpstreamError{Message: ev.Error}
				}
				if err := fn(domain.Fragment{Text: ev.Response, Context: ev.Context, Done: ev.Done}); err != nil {
					return err
				}
				if ev.Done {
					return nil
				}
			}
		}

		if readErr != nil {
			return nil
		}
	}
}
