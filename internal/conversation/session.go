package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bors-backend/internal/model"
	"bors-backend/internal/storage"
	"bors-backend/pkg/logger"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyInput            = errors.New("nothing to send")
	ErrSendInFlight          = errors.New("a send is already in progress")
	ErrAttachmentInImageMode = errors.New("attachments are not supported in image mode")
	ErrNoChoices             = errors.New("chat response has no choices")
	ErrNoImageData           = errors.New("no image data")
	ErrUnknownMode           = errors.New("unknown mode")
)

// Backend is the proxy pair a Session dispatches to.
type Backend interface {
	Chat(ctx context.Context, modelID string, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error)
	Image(ctx context.Context, req model.ImageRequest) (model.ImageResponse, error)
}

// Session is the conversation state machine: idle -> sending -> idle.
// All methods are safe for concurrent use; only one send runs at a time.
type Session struct {
	mu         sync.Mutex
	backend    Backend
	store      storage.Storage
	catalog    model.CatalogResponse
	settings   model.Settings
	mode       Mode
	messages   []Message
	attachment *Attachment
	loading    bool
	listeners  []func()
}

// NewSession offers the models and ratios of catalog and restores the
// persisted system prompt. A blank stored prompt counts as unset.
func NewSession(backend Backend, store storage.Storage, catalog model.CatalogResponse) (*Session, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	catalog = copyCatalog(catalog)
	settings := model.DefaultSettingsFor(catalog)

	prompt, err := store.Get(model.SystemPromptKey)
	switch {
	case err == nil:
		if strings.TrimSpace(prompt) != "" {
			settings.SystemPrompt = prompt
		}
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return nil, fmt.Errorf("load system prompt: %w", err)
	}

	return &Session{
		backend:  backend,
		store:    store,
		catalog:  catalog,
		settings: settings,
		mode:     ModeText,
	}, nil
}

// Catalog is the set of models and ratios this session accepts.
func (s *Session) Catalog() model.CatalogResponse {
	return copyCatalog(s.catalog)
}

func copyCatalog(c model.CatalogResponse) model.CatalogResponse {
	return model.CatalogResponse{
		TextModels:  append([]string(nil), c.TextModels...),
		ImageModels: append([]string(nil), c.ImageModels...),
		ImageRatios: append([]model.RatioOption(nil), c.ImageRatios...),
	}
}

// OnChange registers fn to run after every state change, outside the lock.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Attachment() *Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return nil
	}
	att := *s.attachment
	return &att
}

// ActiveModel is the model used by the current mode.
func (s *Session) ActiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeModel(s.mode, s.settings)
}

// configure applies fn to a copy of the settings and keeps it if valid.
// Configuration is frozen while a send is in flight.
func (s *Session) configure(fn func(*model.Settings)) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	next := s.settings
	fn(&next)
	if err := next.ValidateFor(s.catalog); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = next
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Session) SetMode(mode Mode) error {
	if mode != ModeText && mode != ModeImage {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.mode = mode
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Session) SetTextModel(id string) error {
	return s.configure(func(st *model.Settings) { st.TextModel = id })
}

func (s *Session) SetImageModel(id string) error {
	return s.configure(func(st *model.Settings) { st.ImageModel = id })
}

func (s *Session) SetImageRatio(ratio string) error {
	return s.configure(func(st *model.Settings) { st.ImageRatio = ratio })
}

// SetSystemPrompt changes the prompt for this run only; SaveSettings
// persists it. A blank prompt restores the default.
func (s *Session) SetSystemPrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		prompt = model.DefaultSystemPrompt
	}
	return s.configure(func(st *model.Settings) { st.SystemPrompt = prompt })
}

func (s *Session) SaveSettings() error {
	prompt := s.Settings().SystemPrompt
	if err := s.store.Set(model.SystemPromptKey, prompt); err != nil {
		return fmt.Errorf("save system prompt: %w", err)
	}
	return nil
}

func (s *Session) Attach(att Attachment) {
	s.mu.Lock()
	s.attachment = &att
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Detach() {
	s.mu.Lock()
	s.attachment = nil
	s.mu.Unlock()
	s.notify()
}

// Clear empties the visible history. The persisted prompt is untouched.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.messages = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

type sendPlan struct {
	mode     Mode
	settings model.Settings
	history  []Message
	user     Message
}

// Send runs one idle -> sending -> idle cycle. The returned message is the
// assistant reply that was appended; on failure it is the fixed failure
// message and err carries the cause. Errors returned before anything was
// appended (empty input, busy, attachment in image mode) leave the session
// unchanged.
func (s *Session) Send(ctx context.Context, input string) (Message, error) {
	plan, err := s.begin(input)
	if err != nil {
		return Message{}, err
	}
	s.notify()

	reply, err := s.dispatch(ctx, plan)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"mode":  plan.mode,
			"model": activeModel(plan.mode, plan.settings),
		}).WithError(err).Warn("send failed")
		reply = newMessage(openai.ChatMessageRoleAssistant, FailureText)
	}

	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.loading = false
	s.mu.Unlock()
	s.notify()

	return reply, err
}

func (s *Session) begin(input string) (sendPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := strings.TrimSpace(input)
	if s.loading {
		return sendPlan{}, ErrSendInFlight
	}
	if text == "" && s.attachment == nil {
		return sendPlan{}, ErrEmptyInput
	}
	if s.mode == ModeImage && s.attachment != nil {
		return sendPlan{}, ErrAttachmentInImageMode
	}

	user := newMessage(openai.ChatMessageRoleUser, text)
	if s.attachment != nil {
		user.ImageURL = s.attachment.DataURL
		user.ImageMIME = s.attachment.MIME
	}

	plan := sendPlan{
		mode:     s.mode,
		settings: s.settings,
		history:  append([]Message(nil), s.messages...),
		user:     user,
	}

	s.messages = append(s.messages, user)
	s.attachment = nil
	s.loading = true
	return plan, nil
}

func (s *Session) dispatch(ctx context.Context, plan sendPlan) (Message, error) {
	switch plan.mode {
	case ModeImage:
		return s.generateImage(ctx, plan)
	default:
		return s.chat(ctx, plan)
	}
}

// ChatMessages builds the chat request body: system prompt first, then the
// prior history, then the new user utterance.
func ChatMessages(systemPrompt string, history []Message, user Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		out = append(out, m.toAPI())
	}
	return append(out, user.toAPI())
}

func (s *Session) chat(ctx context.Context, plan sendPlan) (Message, error) {
	messages := ChatMessages(plan.settings.SystemPrompt, plan.history, plan.user)

	resp, err := s.backend.Chat(ctx, plan.settings.TextModel, messages)
	if err != nil {
		return Message{}, err
	}
	if len(resp.Choices) == 0 {
		return Message{}, ErrNoChoices
	}
	return newMessage(openai.ChatMessageRoleAssistant, replyText(resp.Choices[0].Message)), nil
}

func (s *Session) generateImage(ctx context.Context, plan sendPlan) (Message, error) {
	resp, err := s.backend.Image(ctx, model.ImageRequest{
		Model:  plan.settings.ImageModel,
		Prompt: plan.user.Content,
		Ratio:  plan.settings.ImageRatio,
	})
	if err != nil {
		return Message{}, err
	}
	if len(resp.Files) == 0 {
		return Message{}, ErrNoImageData
	}

	data, mime, url, err := decodeImage(resp.Files[0])
	if err != nil {
		return Message{}, err
	}

	msg := newMessage(openai.ChatMessageRoleAssistant, "🎨 "+plan.user.Content)
	msg.Kind = KindImage
	msg.ImageURL = url
	msg.ImageData = data
	msg.ImageMIME = mime
	return msg, nil
}

func newMessage(role, content string) Message {
	return Message{
		ID:      uuid.New().String(),
		Role:    role,
		Content: content,
		Kind:    KindText,
	}
}

func activeModel(mode Mode, settings model.Settings) string {
	if mode == ModeImage {
		return settings.ImageModel
	}
	return settings.TextModel
}
