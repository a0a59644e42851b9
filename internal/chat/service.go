package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/ai"
	"github.com/Marker-bit/mrkrbt-chat/internal/catalog"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
	"github.com/Marker-bit/mrkrbt-chat/internal/metrics"
	"github.com/Marker-bit/mrkrbt-chat/internal/models"
	"github.com/Marker-bit/mrkrbt-chat/internal/tools"
)

var (
	ErrUnknownModel      = errors.New("unknown model")
	ErrNotOwner          = errors.New("not the chat owner")
	ErrEmptyMessage      = errors.New("message has no text")
	ErrMessageTooLong    = errors.New("message text too long")
	ErrInvalidPart       = errors.New("unsupported message part type")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrMessageNotFound = errors.New("message not found in chat")
	ErrPinLimit        = fmt.Errorf("at most %d chats may be pinned", PinLimit)
)

// GenericStreamError is the only error text a client ever sees for
// upstream/stream failures.
const GenericStreamError = "Something went wrong while generating a response. Please try again."

const placeholderTitle = "New chat"

// StatusCache mirrors chat lifecycle state into a fast store so the polling
// endpoint does not hit the database on every tick.
type StatusCache interface {
	SetChatState(ctx context.Context, chatID string, state string) error
	GetChatState(ctx context.Context, chatID string) (string, bool, error)
}

// TitleJob carries everything the worker needs for one title completion.
// The API key rides along because keys are client-held and the worker has
// no other way to reach the provider.
type TitleJob struct {
	JobID    string `json:"job_id"`
	ChatID   string `json:"chat_id"`
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	Prompt   string `json:"prompt"`
}

type TitlePublisher interface {
	PublishTitleJob(ctx context.Context, job TitleJob) error
}

type ServiceConfig struct {
	OpenAIBaseURL     string
	OpenRouterBaseURL string
	AnthropicBaseURL  string
	OllamaBaseURL     string
	BraveBaseURL      string
	MaxMessageChars   int
	TitleMaxWords     int
}

func (c ServiceConfig) providerBaseURL(providerID string) string {
	switch providerID {
	case "openai":
		return c.OpenAIBaseURL
	case "openrouter":
		return c.OpenRouterBaseURL
	case "anthropic":
		return c.AnthropicBaseURL
	case "ollama":
		return c.OllamaBaseURL
	default:
		return ""
	}
}

type Service struct {
	repo     *Repo
	registry *ai.Registry
	status   StatusCache
	titles   TitlePublisher
	cfg      ServiceConfig
}

func NewService(repo *Repo, registry *ai.Registry, status StatusCache, titles TitlePublisher, cfg ServiceConfig) *Service {
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = 32000
	}
	if cfg.TitleMaxWords <= 0 {
		cfg.TitleMaxWords = 6
	}
	return &Service{repo: repo, registry: registry, status: status, titles: titles, cfg: cfg}
}

type TurnRequest struct {
	ChatID         uuid.UUID
	MessageID      uuid.UUID
	Parts          []Part
	ModelID        string
	Effort         string
	Visibility     Visibility
	WebSearch      bool
	RetryMessageID *uuid.UUID
}

// TurnEvent is one unit relayed to the client while a turn streams.
type TurnEvent struct {
	Type  string `json:"type"` // text | reasoning | tool
	Delta string `json:"delta,omitempty"`
	Tool  *Part  `json:"tool,omitempty"`
}

// Turn exposes the streaming side of one chat turn. Events closes when the
// upstream is drained; MessageID delivers the assistant message id on
// success; Errs delivers at most one error.
type Turn struct {
	Events    <-chan TurnEvent
	MessageID <-chan uuid.UUID
	Errs      <-chan error
}

// SendTurn validates the request and rejects configuration problems before
// any upstream call, then persists the transcript with state loading and
// streams the completion. The final write flips state to complete whether
// the stream succeeded or not.
func (s *Service) SendTurn(ctx context.Context, user *models.User, keySet keys.Set, req TurnRequest) (*Turn, error) {
	// User messages may only carry text and file parts; reasoning and tool
	// parts are produced server-side.
	for _, p := range req.Parts {
		if p.Type != PartText && p.Type != PartFile {
			return nil, ErrInvalidPart
		}
	}
	if req.Visibility != "" && req.Visibility != VisibilityPrivate && req.Visibility != VisibilityPublic {
		return nil, ErrInvalidVisibility
	}

	userText := strings.TrimSpace(textOfParts(req.Parts))
	if userText == "" {
		return nil, ErrEmptyMessage
	}
	if len(userText) > s.cfg.MaxMessageChars {
		return nil, ErrMessageTooLong
	}

	model, ok := catalog.FindModel(req.ModelID)
	if !ok {
		return nil, ErrUnknownModel
	}
	cred, err := catalog.Resolve(model, keySet)
	if err != nil {
		return nil, err
	}

	chat, created, err := s.loadOrCreate(ctx, user.ID, req)
	if err != nil {
		return nil, err
	}

	if req.RetryMessageID != nil {
		chat.Messages = chat.Messages.TruncateBefore(*req.RetryMessageID)
	}

	msgID := req.MessageID
	if msgID == uuid.Nil {
		msgID = uuid.New()
	}
	chat.Messages = append(chat.Messages, Message{
		ID:    msgID,
		Role:  "user",
		Parts: req.Parts,
	})

	// Concurrent pollers must see in-flight status before streaming starts.
	chat.State = StateLoading
	if req.Visibility != "" {
		chat.Visibility = req.Visibility
	}
	if err := s.repo.Save(ctx, chat); err != nil {
		return nil, err
	}
	s.cacheState(ctx, chat.ID, StateLoading)

	if created {
		s.enqueueTitle(ctx, chat.ID, cred, userText)
	}

	provider, err := s.registry.Get(cred.Provider.ID, ai.Config{
		BaseURL: s.cfg.providerBaseURL(cred.Provider.ID),
		APIKey:  cred.APIKey,
		Model:   cred.UpstreamID,
		Effort:  req.Effort,
	})
	if err != nil {
		// Unknown provider in the catalog is a configuration bug; leave
		// the chat complete so pollers do not hang.
		s.finish(chat)
		return nil, err
	}
	sp, ok := provider.(ai.StreamProvider)
	if !ok {
		s.finish(chat)
		return nil, fmt.Errorf("provider %s does not support streaming", cred.Provider.ID)
	}

	events := make(chan TurnEvent, 16)
	msgIDCh := make(chan uuid.UUID, 1)
	errs := make(chan error, 1)

	go s.runTurn(ctx, sp, chat, user, keySet, model, cred, req, events, msgIDCh, errs)

	return &Turn{Events: events, MessageID: msgIDCh, Errs: errs}, nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID uint64, req TurnRequest) (*Chat, bool, error) {
	chat, err := s.repo.Get(ctx, req.ChatID)
	if err == nil {
		if chat.UserID != userID {
			return nil, false, ErrNotOwner
		}
		return chat, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	chat = &Chat{
		ID:         req.ChatID,
		UserID:     userID,
		Title:      placeholderTitle,
		Messages:   MessageList{},
		State:      StateLoading,
		Visibility: visibility,
	}
	if err := s.repo.Create(ctx, chat); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

func (s *Service) runTurn(ctx context.Context, sp ai.StreamProvider, chat *Chat, user *models.User,
	keySet keys.Set, model catalog.Model, cred catalog.Credential, req TurnRequest,
	events chan<- TurnEvent, msgIDCh chan<- uuid.UUID, errs chan<- error) {

	defer close(events)
	defer close(msgIDCh)
	defer close(errs)

	aiReq := ai.Request{
		System:   systemPrompt(user),
		Messages: toProviderMessages(chat.Messages),
		Effort:   req.Effort,
		Tools:    s.toolSet(model, cred, keySet, req.WebSearch),
	}

	var text, reasoning strings.Builder
	var toolParts []Part

	pending, err := s.relay(ctx, sp, aiReq, events, &text, &reasoning)
	if err == nil && len(pending) > 0 {
		// One tool round: execute, feed results back, stream the final answer.
		executed, resultMsgs := s.executeTools(ctx, keySet, pending, events)
		toolParts = executed

		aiReq.Messages = append(aiReq.Messages, ai.Message{
			Role:      "assistant",
			Content:   text.String(),
			ToolCalls: pending,
		})
		aiReq.Messages = append(aiReq.Messages, resultMsgs...)
		aiReq.Tools = nil

		_, err = s.relay(ctx, sp, aiReq, events, &text, &reasoning)
	}

	if err != nil {
		log.Printf("[SendTurn] stream failed chat=%s provider=%s err=%v", chat.ID, cred.Provider.ID, err)
		metrics.Global().StreamErrors.Inc()
		// Mark complete with no assistant message so the client stops polling.
		s.finish(chat)
		errs <- errors.New(GenericStreamError)
		return
	}

	assistant := Message{
		ID:       uuid.New(),
		Role:     "assistant",
		Model:    model.ID,
		Provider: cred.Provider.ID,
	}
	if reasoning.Len() > 0 {
		assistant.Parts = append(assistant.Parts, Part{Type: PartReasoning, Text: reasoning.String()})
	}
	assistant.Parts = append(assistant.Parts, toolParts...)
	assistant.Parts = append(assistant.Parts, Part{Type: PartText, Text: text.String()})

	chat.Messages = append(chat.Messages, assistant)
	s.finish(chat)

	if err := s.repo.IncrementMessageCount(context.WithoutCancel(ctx), user.ID); err != nil {
		log.Printf("[SendTurn] message counter chat=%s err=%v", chat.ID, err)
	}
	metrics.Global().ChatTurns.WithLabelValues(cred.Provider.ID).Inc()

	msgIDCh <- assistant.ID
}

// relay pumps one provider stream into the client event channel, returning
// any tool calls the model requested.
func (s *Service) relay(ctx context.Context, sp ai.StreamProvider, req ai.Request,
	events chan<- TurnEvent, text, reasoning *strings.Builder) ([]ai.ToolCall, error) {

	pEvents, pErrs := sp.StreamChat(ctx, req)

	send := func(ev TurnEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var pending []ai.ToolCall
	for ev := range pEvents {
		switch ev.Type {
		case ai.EventText:
			text.WriteString(ev.Delta)
			if err := send(TurnEvent{Type: "text", Delta: ev.Delta}); err != nil {
				return nil, err
			}
		case ai.EventReasoning:
			reasoning.WriteString(ev.Delta)
			if err := send(TurnEvent{Type: "reasoning", Delta: ev.Delta}); err != nil {
				return nil, err
			}
		case ai.EventToolCall:
			if ev.ToolCall != nil {
				pending = append(pending, *ev.ToolCall)
			}
		}
	}

	select {
	case err := <-pErrs:
		if err != nil {
			return nil, err
		}
	default:
	}
	return pending, nil
}

func (s *Service) toolSet(model catalog.Model, cred catalog.Credential, keySet keys.Set, webSearch bool) []ai.ToolDef {
	if !model.SupportsTools {
		return nil
	}
	// The tool loop runs over the OpenAI-compatible wire format only.
	if cred.Provider.ID != "openai" && cred.Provider.ID != "openrouter" {
		return nil
	}
	var defs []ai.ToolDef
	if keySet.Has("openai") {
		defs = append(defs, tools.ImageToolDef())
	}
	if webSearch && keySet.Has("brave") {
		defs = append(defs, tools.SearchToolDef())
	}
	return defs
}

func (s *Service) executeTools(ctx context.Context, keySet keys.Set, calls []ai.ToolCall,
	events chan<- TurnEvent) ([]Part, []ai.Message) {

	var parts []Part
	var msgs []ai.Message

	for _, call := range calls {
		output := s.executeTool(ctx, keySet, call)

		part := Part{
			Type:       PartTool,
			ToolName:   call.Name,
			ToolInput:  call.Arguments,
			ToolOutput: output,
		}
		parts = append(parts, part)
		// The result still goes into the transcript when the client is gone,
		// so a cancelled ctx skips the send rather than aborting the round.
		select {
		case events <- TurnEvent{Type: "tool", Tool: &part}:
		case <-ctx.Done():
		}

		msgs = append(msgs, ai.Message{
			Role:       "tool",
			Content:    string(output),
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return parts, msgs
}

func (s *Service) executeTool(ctx context.Context, keySet keys.Set, call ai.ToolCall) json.RawMessage {
	fail := func(err error) json.RawMessage {
		log.Printf("[SendTurn] tool %s failed: %v", call.Name, err)
		out, _ := json.Marshal(map[string]string{"error": "tool execution failed"})
		return out
	}

	switch call.Name {
	case tools.ImageToolName:
		var in tools.ImageInput
		if err := json.Unmarshal(call.Arguments, &in); err != nil {
			return fail(err)
		}
		gen := tools.NewImageGenerator(s.cfg.OpenAIBaseURL, keySet.Get("openai"))
		out, err := gen.Generate(ctx, in)
		if err != nil {
			return fail(err)
		}
		raw, _ := json.Marshal(out)
		return raw

	case tools.SearchToolName:
		var in tools.SearchInput
		if err := json.Unmarshal(call.Arguments, &in); err != nil {
			return fail(err)
		}
		searcher := tools.NewWebSearcher(s.cfg.BraveBaseURL, keySet.Get("brave"))
		out, err := searcher.Search(ctx, in)
		if err != nil {
			return fail(err)
		}
		raw, _ := json.Marshal(out)
		return raw

	default:
		return fail(fmt.Errorf("unknown tool"))
	}
}

// finish persists the terminal state. Runs detached from the request
// context: a client disconnect must not leave the chat stuck in loading.
func (s *Service) finish(chat *Chat) {
	ctx := context.Background()
	chat.State = StateComplete
	if err := s.repo.Save(ctx, chat); err != nil {
		log.Printf("[SendTurn] final save chat=%s err=%v", chat.ID, err)
	}
	s.cacheState(ctx, chat.ID, StateComplete)
}

func (s *Service) cacheState(ctx context.Context, chatID uuid.UUID, state State) {
	if s.status == nil {
		return
	}
	if err := s.status.SetChatState(ctx, chatID.String(), string(state)); err != nil {
		log.Printf("[SendTurn] status cache chat=%s err=%v", chatID, err)
	}
}

func (s *Service) enqueueTitle(ctx context.Context, chatID uuid.UUID, cred catalog.Credential, userText string) {
	if s.titles == nil {
		return
	}
	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[SendTurn] title job id chat=%s err=%v", chatID, err)
		return
	}
	job := TitleJob{
		JobID:    jobID,
		ChatID:   chatID.String(),
		Provider: cred.Provider.ID,
		BaseURL:  s.cfg.providerBaseURL(cred.Provider.ID),
		Model:    cred.UpstreamID,
		APIKey:   cred.APIKey,
		Prompt:   titlePrompt(s.cfg.TitleMaxWords, userText),
	}
	if err := s.titles.PublishTitleJob(ctx, job); err != nil {
		// Title stays as the placeholder; not worth failing the turn.
		log.Printf("[SendTurn] title publish chat=%s err=%v", chatID, err)
		return
	}
	metrics.Global().TitleJobs.Inc()
}

func titlePrompt(maxWords int, userText string) string {
	if len(userText) > 500 {
		userText = userText[:500]
	}
	return fmt.Sprintf(
		"Generate a title of at most %d words for a conversation that starts with:\n\n%s\n\nReply with the title only, no quotes.",
		maxWords, userText)
}

func systemPrompt(user *models.User) string {
	prompt := "You are a helpful assistant."
	if info := strings.TrimSpace(user.AdditionalInfo); info != "" {
		prompt += "\n\nAbout the user:\n" + info
	}
	return prompt
}

func toProviderMessages(list MessageList) []ai.Message {
	out := make([]ai.Message, 0, len(list))
	for _, m := range list {
		text := m.Text()
		if text == "" {
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Content: text})
	}
	return out
}

func textOfParts(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
