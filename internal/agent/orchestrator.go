package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/hayden-dev/perpmind/internal/llm"
	"github.com/hayden-dev/perpmind/internal/storage"
)

// SentinelConversationID means "not yet persisted; allocate a new
// conversation". It is never written to storage as-is.
const SentinelConversationID = "new"

// ConversationsCollection is the durable-storage collection conversations
// live in.
const ConversationsCollection = "conversations"

// ErrConversationNotFound is returned when a non-sentinel id has no match
// in storage. This is a hard precondition failure, not a fresh start.
var ErrConversationNotFound = errors.New("agent: conversation not found")

const (
	RoleSystem     = "system"
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool-result"
)

// Message is one conversation entry. Append-only within a turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the durable unit of chat state. Its first message is
// always the system prompt.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// Orchestrator owns per-conversation state while a turn is processed;
// durable storage owns it between turns.
type Orchestrator struct {
	store     storage.Store
	completer llm.Completer
	tools     []Tool
	userID    string
	log       zerolog.Logger

	initOnce  sync.Once
	toolIndex map[string]Tool
	cache     map[string]*Conversation
}

func NewOrchestrator(store storage.Store, completer llm.Completer, tools []Tool, userID string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		completer: completer,
		tools:     tools,
		userID:    userID,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// init builds the tool index and the in-memory cache. Idempotent.
func (o *Orchestrator) init() {
	o.initOnce.Do(func() {
		o.toolIndex = make(map[string]Tool, len(o.tools))
		for _, tool := range o.tools {
			o.toolIndex[tool.Name()] = tool
		}
		o.cache = make(map[string]*Conversation)
	})
}

// systemPrompt enumerates the registered tools with the directive syntax
// and a few-shot example.
func (o *Orchestrator) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a crypto trading assistant.\n\nAvailable tools:\n")
	for _, tool := range o.tools {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name(), tool.Description())
	}
	sb.WriteString(`
To use a tool, include exactly one directive in your reply:
<tool>tool_name:input</tool>

Example:
User: What is ETH trading at?
You: <tool>price_lookup:ETH</tool>

Answer directly when no tool is needed.`)
	return sb.String()
}

// ProcessMessage runs one conversation turn and persists the result. The
// returned id is the authoritative conversation id: storage-assigned when
// the sentinel id started a fresh conversation.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text, conversationID string) (string, string, error) {
	o.init()

	conv, err := o.resolve(ctx, conversationID)
	if err != nil {
		return "", "", err
	}

	conv.append(RoleUser, text)

	reply, err := o.completer.Complete(ctx, conv.history())
	if err != nil {
		return "", "", fmt.Errorf("conversation turn: %w", err)
	}

	finalReply := reply
	if directive, ok := ParseDirective(reply); ok {
		if tool, known := o.toolIndex[directive.Name]; known {
			result := o.runTool(ctx, tool, directive.Input)
			conv.append(RoleAssistant, reply)
			conv.append(RoleToolResult, result)

			finalReply, err = o.completer.Complete(ctx, conv.history())
			if err != nil {
				return "", "", fmt.Errorf("post-tool turn: %w", err)
			}
			conv.append(RoleAssistant, finalReply)
		} else {
			// unknown tool name: keep the reply as-is, no error surfaced
			o.log.Warn().Str("tool", directive.Name).Msg("directive names an unregistered tool")
			conv.append(RoleAssistant, reply)
		}
	} else {
		conv.append(RoleAssistant, reply)
	}

	id, err := o.persist(ctx, conv)
	if err != nil {
		return "", "", err
	}
	return id, finalReply, nil
}

// DeleteConversation removes a conversation by owner and id, then drops
// any cached copy.
func (o *Orchestrator) DeleteConversation(ctx context.Context, conversationID string) error {
	o.init()

	err := o.store.Delete(ctx, ConversationsCollection, storage.Filter{
		"owner_id": o.userID,
		"id":       conversationID,
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	delete(o.cache, conversationID)
	return nil
}

// resolve maps a conversation id to a working copy of its state. The
// sentinel id always starts fresh; other ids must exist in cache or
// storage. Returning a copy keeps the cached entry matching storage until
// the turn persists: a failed turn must not leave half-appended messages
// behind for a retry to replay.
func (o *Orchestrator) resolve(ctx context.Context, conversationID string) (*Conversation, error) {
	if conversationID == SentinelConversationID {
		now := time.Now().UTC()
		conv := &Conversation{
			ID:        SentinelConversationID,
			UserID:    o.userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		conv.append(RoleSystem, o.systemPrompt())
		return conv, nil
	}

	if conv, ok := o.cache[conversationID]; ok {
		return conv.clone(), nil
	}

	records, err := o.store.Read(ctx, ConversationsCollection, storage.Filter{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	var conv Conversation
	if err := records[0].DecodeData(&conv); err != nil {
		return nil, err
	}
	conv.ID = records[0].ID
	o.cache[conv.ID] = &conv
	return conv.clone(), nil
}

// runTool executes a tool, folding failures back into the conversation as
// a result payload rather than aborting the turn.
func (o *Orchestrator) runTool(ctx context.Context, tool Tool, input string) string {
	result, err := tool.Execute(ctx, input)
	if err != nil {
		o.log.Warn().Err(err).Str("tool", tool.Name()).Msg("tool execution failed")
		return fmt.Sprintf("Tool %s failed: %v", tool.Name(), err)
	}
	return result
}

// persist writes the full conversation. Sentinel conversations are
// inserted and adopt the storage-assigned id; others are upserted by id,
// last writer wins.
func (o *Orchestrator) persist(ctx context.Context, conv *Conversation) (string, error) {
	conv.UpdatedAt = time.Now().UTC()

	if conv.ID == SentinelConversationID {
		conv.ID = "" // storage assigns the real id
		data, err := json.Marshal(conv)
		if err != nil {
			return "", fmt.Errorf("marshal conversation: %w", err)
		}
		ids, err := o.store.Write(ctx, ConversationsCollection, []storage.Record{{
			OwnerID: conv.UserID,
			Data:    data,
		}})
		if err != nil {
			return "", fmt.Errorf("insert conversation: %w", err)
		}
		conv.ID = ids[0]
		o.cache[conv.ID] = conv
		return conv.ID, nil
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	err = o.store.Update(ctx, ConversationsCollection, storage.Record{
		OwnerID: conv.UserID,
		Data:    data,
	}, storage.Filter{"id": conv.ID})
	if err != nil {
		return "", fmt.Errorf("update conversation %s: %w", conv.ID, err)
	}
	o.cache[conv.ID] = conv
	return conv.ID, nil
}

// clone copies the conversation with its own message slice, so appends on
// the copy never reach the cached original.
func (c *Conversation) clone() *Conversation {
	dup := *c
	dup.Messages = append([]Message(nil), c.Messages...)
	return &dup
}

func (c *Conversation) append(role, content string) {
	c.Messages = append(c.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// history maps stored messages onto the reasoning-service request shape.
// Tool results travel as system messages.
func (c *Conversation) history() []*schema.Message {
	msgs := make([]*schema.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		switch m.Role {
		case RoleSystem, RoleToolResult:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		case RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return msgs
}
