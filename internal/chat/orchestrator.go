package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medichat/internal/models"
)

// Completer produces an assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message) (content string, ok bool, err error)
}

// ContextProvider supplies literature context for a user query. An empty
// string means no context is available.
type ContextProvider interface {
	Context(ctx context.Context, query string) string
}

// Orchestrator drives a conversation turn: it primes new conversations with
// the doctor persona, grounds the prompt in retrieved literature when a
// retriever is configured, and maps every failure to a textual reply so the
// chat endpoint never surfaces an error.
type Orchestrator struct {
	completer Completer
	retriever ContextProvider
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator. retriever may be nil, in which
// case replies are generated without literature grounding.
func NewOrchestrator(completer Completer, retriever ContextProvider, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{completer: completer, retriever: retriever, logger: logger}
}

// Reply produces the assistant's answer to userInput given the stored
// conversation history. The returned history always contains the user turn;
// the assistant turn is appended only when the model produced usable content.
// Retrieved literature context rides along as an extra system turn in the
// prompt but is never persisted in the history.
func (o *Orchestrator) Reply(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message) {
	if len(history) == 0 {
		history = []models.Message{{Role: models.RoleSystem, Content: personaPrompt(healthSummary)}}
	}

	prompt := make([]models.Message, len(history), len(history)+2)
	copy(prompt, history)
	if o.retriever != nil {
		if rc := o.retriever.Context(ctx, userInput); rc != "" {
			prompt = append(prompt, models.Message{Role: models.RoleSystem, Content: contextPrompt(rc)})
		}
	}

	userTurn := models.Message{Role: models.RoleUser, Content: userInput}
	history = append(history, userTurn)
	prompt = append(prompt, userTurn)

	content, ok, err := o.completer.Complete(ctx, prompt)
	if err != nil {
		o.logger.Error("completion failed", zap.Error(err))
		return fmt.Sprintf("An error occurred: %v", err), history
	}
	if !ok {
		o.logger.Warn("completion returned no content")
		return fallbackReply, history
	}

	history = append(history, models.Message{Role: models.RoleAssistant, Content: content})
	return content, history
}

// SummarizeHistory condenses the user and assistant turns of all stored chats
// into a short health summary. It returns an empty string when there is
// nothing to summarize or the model call fails; callers treat the summary as
// best-effort.
func (o *Orchestrator) SummarizeHistory(ctx context.Context, chats []models.Chat) string {
	var turns []models.Message
	for _, c := range chats {
		for _, m := range c.Messages {
			if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
				turns = append(turns, m)
			}
		}
	}
	if len(turns) == 0 {
		return ""
	}

	messages := make([]models.Message, 0, len(turns)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: summarizeSystemPrompt})
	messages = append(messages, turns...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: summarizeUserPrompt})

	summary, ok, err := o.completer.Complete(ctx, messages)
	if err != nil {
		o.logger.Warn("history summarization failed", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return summary
}
