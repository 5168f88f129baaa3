// Package agent runs a user prompt through Claude with the map tools and
// appends the resulting messages to the chat log. The assistant message it
// produces carries one structured part per tool invocation; layer derivation
// downstream consumes exactly that shape.
package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/chat"
)

const systemPrompt = `You are a map assistant for New York City. You answer
questions about parks, census blocks, neighborhoods, and MapPLUTO tax lots,
using the provided tools. When the user describes a place or draws an area,
define it with defineArea before running parcel queries. Keep answers short;
the map renders the geometry for you.`

// maxTurns bounds the tool-use loop for one user prompt.
const maxTurns = 8

// LLM is the slice of the Anthropic API the agent needs. The production
// implementation is the official SDK client.
type LLM interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkLLM struct {
	client anthropic.Client
}

func (s *sdkLLM) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.client.Messages.New(ctx, params)
}

// NewLLM creates an SDK-backed LLM.
func NewLLM(apiKey string) LLM {
	return &sdkLLM{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Agent executes one conversational turn at a time.
type Agent struct {
	llm       LLM
	tools     *Tools
	store     chat.Store
	model     string
	maxTokens int64
	log       *zap.Logger
}

// New wires an Agent.
func New(llm LLM, tools *Tools, store chat.Store, model string, maxTokens int64) *Agent {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Agent{
		llm:       llm,
		tools:     tools,
		store:     store,
		model:     model,
		maxTokens: maxTokens,
		log:       zap.L().With(zap.String("component", "agent")),
	}
}

// Run executes one user turn: the prompt is appended to the chat log, the
// model is run to completion through the tool loop, and the assistant
// message (text plus tool parts) is appended and returned.
func (a *Agent) Run(ctx context.Context, chatID, userID, prompt string) (*chat.Message, error) {
	c, err := a.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, apperr.New(apperr.KindAccessDenied, "agent: only the chat owner may send messages")
	}

	userMsg := chat.Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Role:   chat.RoleUser,
		Parts:  []chat.Part{{Type: "text", Text: prompt}},
	}
	if err := a.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := a.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	conversation := toSDKHistory(history)
	var parts []chat.Part

	for turn := 0; turn < maxTurns; turn++ {
		msg, err := a.llm.CreateMessage(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  conversation,
			Tools:     toolDefinitions(),
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "agent: create message")
		}

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				parts = append(parts, chat.Part{Type: "text", Text: block.Text})
			case "tool_use":
				output := a.tools.Execute(ctx, chatID, userID, block.Name, block.Input)
				parts = append(parts, chat.Part{
					Type:   "tool-" + block.Name,
					State:  chat.PartStateOutputAvailable,
					Input:  block.Input,
					Output: output,
				})
				toolResults = append(toolResults, toolResultBlock(block.ID, output))
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(toolResults) == 0 {
			break
		}

		conversation = append(conversation, msg.ToParam())
		conversation = append(conversation, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: toolResults,
		})
	}

	assistantMsg := chat.Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Role:   chat.RoleAssistant,
		Parts:  parts,
	}
	if err := a.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	a.log.Info("turn complete",
		zap.String("chat_id", chatID),
		zap.Int("parts", len(parts)),
	)
	return &assistantMsg, nil
}

// toSDKHistory converts the stored message log to SDK params. Tool parts are
// summarized by their text rendering: replaying raw tool_use blocks from
// storage would require the original block ids, which are not kept.
func toSDKHistory(msgs []chat.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		text := ""
		for _, p := range m.Parts {
			if p.Type == "text" {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			}
		}
		if text == "" {
			continue
		}
		switch m.Role {
		case chat.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	return out
}

func toolResultBlock(toolUseID string, output json.RawMessage) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUseID,
			Content: []anthropic.ToolResultBlockParamContentUnion{
				{OfText: &anthropic.TextBlockParam{Text: string(output)}},
			},
		},
	}
}
