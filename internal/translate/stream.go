package translate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
)

// maxSSELineBytes bounds a single SSE line; generous because tool arguments
// can arrive in large partial_json deltas.
const maxSSELineBytes = 1 << 20

// CopyStream relays an upstream SSE stream to the client, translating events
// on the fly when the wire formats differ. flush is called after every
// forwarded event; it may be nil.
func CopyStream(w io.Writer, flush func(), upstreamBody io.Reader, upstream, client config.Format) error {
	if flush == nil {
		flush = func() {}
	}
	if upstream == client {
		return copyRaw(w, flush, upstreamBody)
	}
	switch {
	case upstream == config.FormatClaude && client == config.FormatOpenAI:
		return streamClaudeToOpenAI(w, flush, upstreamBody)
	case upstream == config.FormatOpenAI && client == config.FormatClaude:
		return streamOpenAIToClaude(w, flush, upstreamBody)
	default:
		return fmt.Errorf("unsupported translation %s -> %s", upstream, client)
	}
}

// copyRaw forwards the stream unchanged, flushing at event boundaries.
func copyRaw(w io.Writer, flush func(), r io.Reader) error {
	sc := newSSEScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
		if line == "" {
			flush()
		}
	}
	flush()
	return sc.Err()
}

func newSSEScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxSSELineBytes)
	return sc
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readSSE invokes fn for each complete event. Data-only events have an empty
// name (the OpenAI framing); [DONE] arrives as data "[DONE]".
func readSSE(r io.Reader, fn func(ev sseEvent) error) error {
	sc := newSSEScanner(r)
	var cur sseEvent
	var dataLines []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(dataLines) > 0 || cur.name != "" {
				cur.data = strings.Join(dataLines, "\n")
				if err := fn(cur); err != nil {
					return err
				}
			}
			cur = sseEvent{}
			dataLines = dataLines[:0]
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
		// Comment lines (":keepalive") and unknown fields are ignored.
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(dataLines) > 0 || cur.name != "" {
		cur.data = strings.Join(dataLines, "\n")
		return fn(cur)
	}
	return nil
}

// writeSSE emits one event. An empty name produces OpenAI-style data-only
// framing; Anthropic framing names every event.
func writeSSE(w io.Writer, flush func(), name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
		return err
	}
	flush()
	return nil
}

func writeSSEDone(w io.Writer, flush func()) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	flush()
	return nil
}

// streamClaudeToOpenAI converts Anthropic stream events into chat-completion
// chunks.
func streamClaudeToOpenAI(w io.Writer, flush func(), r io.Reader) error {
	var (
		id           string
		model        string
		created      = time.Now().Unix()
		promptTokens int
		toolIndex    = -1               // running openai tool_calls index
		blockTool    = map[int]int{}    // claude block index -> openai tool index
	)

	chunk := func(choice OpenAIStreamChoice, usage *OpenAIUsage) error {
		return writeSSE(w, flush, "", &OpenAIStreamChunk{
			ID:      responseID(id, "chatcmpl"),
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []OpenAIStreamChoice{choice},
			Usage:   usage,
		})
	}

	err := readSSE(r, func(ev sseEvent) error {
		if ev.data == "" || ev.data == "[DONE]" {
			return nil
		}
		var event ClaudeStreamEvent
		if err := json.Unmarshal([]byte(ev.data), &event); err != nil {
			return fmt.Errorf("parse claude stream event: %w", err)
		}
		switch event.Type {
		case "message_start":
			if event.Message != nil {
				id = event.Message.ID
				model = event.Message.Model
				if event.Message.Usage != nil {
					promptTokens = event.Message.Usage.InputTokens
				}
			}
			return chunk(OpenAIStreamChoice{Delta: OpenAIDelta{Role: "assistant"}}, nil)
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				toolIndex++
				blockTool[event.Index] = toolIndex
				return chunk(OpenAIStreamChoice{Delta: OpenAIDelta{ToolCalls: []OpenAIToolCallDelta{{
					Index: toolIndex,
					ID:    event.ContentBlock.ID,
					Type:  "function",
					Function: OpenAIFunctionCallDelta{
						Name:      event.ContentBlock.Name,
						Arguments: "",
					},
				}}}}, nil)
			}
			return nil
		case "content_block_delta":
			if event.Delta == nil {
				return nil
			}
			switch event.Delta.Type {
			case "text_delta":
				return chunk(OpenAIStreamChoice{Delta: OpenAIDelta{Content: event.Delta.Text}}, nil)
			case "input_json_delta":
				ti, ok := blockTool[event.Index]
				if !ok {
					return nil
				}
				return chunk(OpenAIStreamChoice{Delta: OpenAIDelta{ToolCalls: []OpenAIToolCallDelta{{
					Index:    ti,
					Function: OpenAIFunctionCallDelta{Arguments: event.Delta.PartialJSON},
				}}}}, nil)
			}
			// thinking_delta and signature_delta do not exist in the
			// chat-completions stream shape.
			return nil
		case "message_delta":
			var usage *OpenAIUsage
			if event.Usage != nil {
				usage = &OpenAIUsage{
					PromptTokens:     promptTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      promptTokens + event.Usage.OutputTokens,
				}
			}
			if event.Delta == nil || event.Delta.StopReason == "" {
				return nil
			}
			finish := claudeStopToOpenAI(event.Delta.StopReason)
			return chunk(OpenAIStreamChoice{Delta: OpenAIDelta{}, FinishReason: &finish}, usage)
		case "message_stop":
			return writeSSEDone(w, flush)
		}
		// ping and unknown event types are dropped.
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// streamOpenAIToClaude converts chat-completion chunks into Anthropic stream
// events, synthesizing the block lifecycle the Messages protocol requires.
type claudeStreamState struct {
	started    bool
	blockIndex int
	blockOpen  bool
	blockType  string // "text" or "tool_use"
	toolIndex  int    // openai tool_calls index of the open tool block
	stopReason string
	usage      *OpenAIUsage
}

func streamOpenAIToClaude(w io.Writer, flush func(), r io.Reader) error {
	st := &claudeStreamState{blockIndex: -1, toolIndex: -1}

	closeBlock := func() error {
		if !st.blockOpen {
			return nil
		}
		st.blockOpen = false
		return writeSSE(w, flush, "content_block_stop", &ClaudeStreamEvent{
			Type:  "content_block_stop",
			Index: st.blockIndex,
		})
	}

	finish := func() error {
		if !st.started {
			return nil
		}
		if err := closeBlock(); err != nil {
			return err
		}
		stop := openAIFinishToClaude(st.stopReason)
		if stop == "" {
			stop = "end_turn"
		}
		delta := &ClaudeStreamEvent{
			Type:  "message_delta",
			Delta: &ClaudeStreamDelta{StopReason: stop},
		}
		if st.usage != nil {
			delta.Usage = &ClaudeUsage{
				InputTokens:  st.usage.PromptTokens,
				OutputTokens: st.usage.CompletionTokens,
			}
		}
		if err := writeSSE(w, flush, "message_delta", delta); err != nil {
			return err
		}
		st.started = false
		return writeSSE(w, flush, "message_stop", &ClaudeStreamEvent{Type: "message_stop"})
	}

	err := readSSE(r, func(ev sseEvent) error {
		if ev.data == "[DONE]" {
			return finish()
		}
		if ev.data == "" {
			return nil
		}
		var chunk OpenAIStreamChunk
		if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
			return fmt.Errorf("parse openai stream chunk: %w", err)
		}
		if !st.started {
			st.started = true
			msg := &ClaudeMessagesResponse{
				ID:      responseID(chunk.ID, "msg"),
				Type:    "message",
				Role:    "assistant",
				Model:   chunk.Model,
				Content: []ClaudeContentBlock{},
				Usage:   &ClaudeUsage{},
			}
			if err := writeSSE(w, flush, "message_start", &ClaudeStreamEvent{
				Type:    "message_start",
				Message: msg,
			}); err != nil {
				return err
			}
		}
		if chunk.Usage != nil {
			st.usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				st.stopReason = *choice.FinishReason
			}
			if choice.Delta.Content != "" {
				if st.blockOpen && st.blockType != "text" {
					if err := closeBlock(); err != nil {
						return err
					}
				}
				if !st.blockOpen {
					st.blockIndex++
					st.blockOpen = true
					st.blockType = "text"
					if err := writeSSE(w, flush, "content_block_start", &ClaudeStreamEvent{
						Type:         "content_block_start",
						Index:        st.blockIndex,
						ContentBlock: &ClaudeContentBlock{Type: "text"},
					}); err != nil {
						return err
					}
				}
				if err := writeSSE(w, flush, "content_block_delta", &ClaudeStreamEvent{
					Type:  "content_block_delta",
					Index: st.blockIndex,
					Delta: &ClaudeStreamDelta{Type: "text_delta", Text: choice.Delta.Content},
				}); err != nil {
					return err
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				newTool := tc.ID != "" || tc.Function.Name != "" || tc.Index != st.toolIndex
				if newTool {
					if err := closeBlock(); err != nil {
						return err
					}
					st.blockIndex++
					st.blockOpen = true
					st.blockType = "tool_use"
					st.toolIndex = tc.Index
					if err := writeSSE(w, flush, "content_block_start", &ClaudeStreamEvent{
						Type:  "content_block_start",
						Index: st.blockIndex,
						ContentBlock: &ClaudeContentBlock{
							Type:  "tool_use",
							ID:    tc.ID,
							Name:  tc.Function.Name,
							Input: json.RawMessage(`{}`),
						},
					}); err != nil {
						return err
					}
				}
				if tc.Function.Arguments != "" {
					if err := writeSSE(w, flush, "content_block_delta", &ClaudeStreamEvent{
						Type:  "content_block_delta",
						Index: st.blockIndex,
						Delta: &ClaudeStreamDelta{Type: "input_json_delta", PartialJSON: tc.Function.Arguments},
					}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Upstream ended without [DONE]: close the message anyway so the client
	// sees a well-formed stream.
	return finish()
}
