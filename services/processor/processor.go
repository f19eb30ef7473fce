package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"salonflow/models"
	"salonflow/services/agent"
	"salonflow/services/booking"
	"salonflow/services/messaging"
	"salonflow/services/ratelimit"
	"salonflow/services/transcribe"

	conversationRepo "salonflow/database/repository/conversation"
	statsRepo "salonflow/database/repository/stats"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	dedupeKeyPrefix = "dedupe:"
	dedupeTTL       = time.Hour

	throttleNotice = "Has enviado muchos mensajes seguidos. Dame unos minutos y con gusto te sigo atendiendo."
	handoffNotice  = "Claro, en un momento te atiende una persona del equipo."
	fallbackReply  = "Perdón, no te entendí bien. ¿Me lo puedes decir de otra forma?"
	errorReply     = "Tuvimos un problema procesando tu mensaje. Inténtalo de nuevo en un momento, por favor."
)

// Limiter admits or denies inbound messages per sender.
type Limiter interface {
	Check(ctx context.Context, sender string, now time.Time) (ratelimit.Result, error)
}

// Buffer accumulates message fragments and drains them into turns.
type Buffer interface {
	Enqueue(ctx context.Context, conversationID string, fragment models.Fragment) error
	Collect(ctx context.Context, conversationID string) (*models.Turn, error)
}

// ControlGate owns the automated/paused state of conversations.
type ControlGate interface {
	EnsureConversation(ctx context.Context, id, senderPhone, clientName string) (*models.Conversation, error)
	IsAutomated(ctx context.Context, id string) (bool, error)
	Pause(ctx context.Context, id, reason, pausedBy string) error
	Resolve(ctx context.Context, id string) error
	Touch(ctx context.Context, id string)
}

// Bookings is the mutation and query surface of the booking engine.
type Bookings interface {
	Create(ctx context.Context, input models.BookingInput) (*models.Booking, error)
	Update(ctx context.Context, id string, changes models.BookingChanges) (*models.Booking, error)
	Cancel(ctx context.Context, id string) error
	NextUpcoming(ctx context.Context, phone string) (*models.Booking, error)
	Appointments(ctx context.Context, phone string) (upcoming, past []models.Booking, err error)
}

// Slots proposes open appointment times.
type Slots interface {
	AvailableSlots(ctx context.Context, provider *models.Provider, at time.Time, duration time.Duration, limit int) ([]time.Time, error)
}

// Catalog is the read surface of the salon catalog.
type Catalog interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	Info(ctx context.Context) (*models.SalonInfo, error)
	FindServiceByName(ctx context.Context, name string) (*models.Service, error)
	FindProviderByName(ctx context.Context, name string) (*models.Provider, error)
}

// Contexts is the rolling history store handed to the decision model.
type Contexts interface {
	Append(ctx context.Context, conversationID, role, content string) error
	History(ctx context.Context, conversationID string) ([]models.ContextMessage, error)
}

// Processor is the orchestrator: it turns webhook events into buffered
// fragments, and buffered fragments into decided, executed, answered turns.
type Processor struct {
	limiter     Limiter
	buffer      Buffer
	gate        ControlGate
	convs       conversationRepo.ConversationRepository
	bookings    Bookings
	slots       Slots
	catalog     Catalog
	decider     agent.Decider
	contexts    Contexts
	messenger   messaging.Messenger
	transcriber transcribe.Transcriber
	stats       statsRepo.StatsRepository
	dedupe      *redis.Client
	keywords    []string
	loc         *time.Location
	logger      *zap.Logger
}

type Deps struct {
	Limiter     Limiter
	Buffer      Buffer
	Gate        ControlGate
	Convs       conversationRepo.ConversationRepository
	Bookings    Bookings
	Slots       Slots
	Catalog     Catalog
	Decider     agent.Decider
	Contexts    Contexts
	Messenger   messaging.Messenger
	Transcriber transcribe.Transcriber
	Stats       statsRepo.StatsRepository
	Dedupe      *redis.Client
	Keywords    []string
	Location    *time.Location
	Logger      *zap.Logger
}

func New(deps Deps) *Processor {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Processor{
		limiter:     deps.Limiter,
		buffer:      deps.Buffer,
		gate:        deps.Gate,
		convs:       deps.Convs,
		bookings:    deps.Bookings,
		slots:       deps.Slots,
		catalog:     deps.Catalog,
		decider:     deps.Decider,
		contexts:    deps.Contexts,
		messenger:   deps.Messenger,
		transcriber: deps.Transcriber,
		stats:       deps.Stats,
		dedupe:      deps.Dedupe,
		keywords:    deps.Keywords,
		loc:         loc,
		logger:      deps.Logger,
	}
}

// HandleEvent classifies one inbound webhook event. Client messages end up
// as buffered fragments; everything else only moves the conversation gate.
func (p *Processor) HandleEvent(ctx context.Context, payload *models.WebhookPayload) (models.WebhookResult, error) {
	if payload.Conversation == nil {
		return models.WebhookResult{Status: "skipped", Reason: "no_conversation"}, nil
	}
	convID := strconv.FormatInt(payload.Conversation.ID, 10)

	switch payload.Event {
	case models.EventConversationCreated:
		phone, name := contactIdentity(payload.Conversation)
		if _, err := p.gate.EnsureConversation(ctx, convID, phone, name); err != nil {
			return models.WebhookResult{}, err
		}
		return models.WebhookResult{Status: "created", ConversationID: convID}, nil

	case models.EventStatusChanged:
		if payload.Conversation.Status == "resolved" || payload.Status == "resolved" {
			if err := p.gate.Resolve(ctx, convID); err != nil {
				return models.WebhookResult{}, err
			}
			return models.WebhookResult{Status: "reactivated", ConversationID: convID}, nil
		}
		return models.WebhookResult{Status: "skipped", Reason: "status_" + payload.Status, ConversationID: convID}, nil

	case models.EventMessageCreated:
		return p.handleMessage(ctx, convID, payload)
	}
	return models.WebhookResult{Status: "skipped", Reason: "unhandled_event"}, nil
}

func (p *Processor) handleMessage(ctx context.Context, convID string, payload *models.WebhookPayload) (models.WebhookResult, error) {
	if payload.Private {
		return models.WebhookResult{Status: "skipped", Reason: "private_note", ConversationID: convID}, nil
	}

	// An outgoing message written by a human agent hands the conversation
	// over; our own outgoing messages echo back and are ignored.
	if payload.MessageType == "outgoing" {
		if payload.Sender != nil && payload.Sender.Type == "user" {
			if err := p.gate.Pause(ctx, convID, models.PauseReasonHumanReply, "agent:"+payload.Sender.Name); err != nil {
				return models.WebhookResult{}, err
			}
			p.count(ctx, models.StatsDelta{HumanHandoffs: 1})
			return models.WebhookResult{Status: "transferred", Reason: models.PauseReasonHumanReply, ConversationID: convID}, nil
		}
		return models.WebhookResult{Status: "skipped", Reason: "own_message", ConversationID: convID}, nil
	}
	if payload.MessageType != "incoming" {
		return models.WebhookResult{Status: "skipped", Reason: "message_type_" + payload.MessageType, ConversationID: convID}, nil
	}

	if dup, err := p.isDuplicate(ctx, convID, payload); err != nil {
		p.logger.Warn("dedupe check failed, processing anyway", zap.Error(err))
	} else if dup {
		return models.WebhookResult{Status: "skipped", Reason: "duplicate", ConversationID: convID}, nil
	}

	phone, name := contactIdentity(payload.Conversation)
	if _, err := p.gate.EnsureConversation(ctx, convID, phone, name); err != nil {
		return models.WebhookResult{}, err
	}
	p.gate.Touch(ctx, convID)
	p.count(ctx, models.StatsDelta{MessagesReceived: 1})

	res, err := p.limiter.Check(ctx, phone, time.Now())
	if err != nil {
		// A broken limiter must not silence the assistant.
		p.logger.Warn("rate limit check failed, admitting message", zap.Error(err))
	} else if !res.Allowed {
		p.count(ctx, models.StatsDelta{RateLimited: 1})
		p.notify(ctx, convID, throttleNotice)
		return models.WebhookResult{Status: "rate_limited", ConversationID: convID}, nil
	}

	content := p.extractContent(ctx, payload)
	if content == "" {
		return models.WebhookResult{Status: "skipped", Reason: "empty_content", ConversationID: convID}, nil
	}

	fragment := models.Fragment{
		MessageID: strconv.FormatInt(payload.ID, 10),
		Content:   content,
		Timestamp: time.Unix(payload.CreatedAt, 0),
	}
	// Paused conversations keep buffering so the turn is still recorded in
	// the history a human sees.
	if err := p.buffer.Enqueue(ctx, convID, fragment); err != nil {
		return models.WebhookResult{}, err
	}

	if p.matchesPauseKeyword(content) {
		if err := p.gate.Pause(ctx, convID, models.PauseReasonKeywordMatch, "system"); err != nil {
			return models.WebhookResult{}, err
		}
		p.count(ctx, models.StatsDelta{HumanHandoffs: 1})
		p.notify(ctx, convID, handoffNotice)
		return models.WebhookResult{Status: "transferred", Reason: models.PauseReasonKeywordMatch, ConversationID: convID}, nil
	}

	return models.WebhookResult{Status: "queued", ConversationID: convID}, nil
}

// ProcessTurn drains the conversation's buffer and, when the assistant owns
// the conversation, decides and executes exactly one command for the merged
// turn. Invoked by the flush worker after the quiet period.
func (p *Processor) ProcessTurn(ctx context.Context, conversationID string) error {
	turn, err := p.buffer.Collect(ctx, conversationID)
	if err != nil {
		return err
	}
	if turn == nil {
		return nil
	}
	p.count(ctx, models.StatsDelta{TurnsProcessed: 1})

	conv, err := p.convs.GetByID(ctx, conversationID)
	if err != nil && err != conversationRepo.ErrNotFound {
		return err
	}
	if conv == nil {
		conv = &models.Conversation{ID: conversationID, ControlState: models.ControlAutomated}
	}

	history, err := p.contexts.History(ctx, conversationID)
	if err != nil {
		p.logger.Warn("failed to load context, deciding without history", zap.Error(err))
	}
	if err := p.contexts.Append(ctx, conversationID, "user", turn.Content); err != nil {
		p.logger.Warn("failed to record user turn", zap.Error(err))
	}

	automated, err := p.gate.IsAutomated(ctx, conversationID)
	if err != nil {
		return err
	}
	if !automated {
		p.logger.Debug("turn recorded for paused conversation", zap.String("conversation", conversationID))
		return nil
	}

	reply := p.decideAndExecute(ctx, conv, turn, history)

	// The gate may have flipped while we were deciding. Re-check right
	// before sending so a human takeover silences us immediately.
	automated, err = p.gate.IsAutomated(ctx, conversationID)
	if err != nil {
		return err
	}
	if !automated {
		p.logger.Info("reply suppressed, conversation was taken over mid-turn",
			zap.String("conversation", conversationID))
		// Leave the draft where only the human agent can see it.
		if err := p.messenger.SendPrivateNote(ctx, conversationID, "Respuesta sugerida del asistente: "+reply); err != nil {
			p.logger.Warn("failed to leave private note", zap.String("conversation", conversationID), zap.Error(err))
		}
		return nil
	}

	if err := p.messenger.SendReply(ctx, conversationID, reply); err != nil {
		p.count(ctx, models.StatsDelta{Errors: 1})
		return fmt.Errorf("failed to send reply: %w", err)
	}
	if err := p.contexts.Append(ctx, conversationID, "assistant", reply); err != nil {
		p.logger.Warn("failed to record assistant reply", zap.Error(err))
	}
	return nil
}

func (p *Processor) decideAndExecute(ctx context.Context, conv *models.Conversation, turn *models.Turn, history []models.ContextMessage) string {
	input := agent.DecisionInput{
		SenderPhone: conv.SenderPhone,
		ClientName:  conv.ClientName,
		Turn:        turn.Content,
		History:     history,
		Now:         time.Now().In(p.loc),
	}
	if services, err := p.catalog.ListServices(ctx); err == nil {
		input.Services = services
	}
	if providers, err := p.catalog.ListProviders(ctx); err == nil {
		input.Providers = providers
	}
	if info, err := p.catalog.Info(ctx); err == nil {
		input.Salon = info
	}
	if upcoming, err := p.bookings.NextUpcoming(ctx, conv.SenderPhone); err == nil {
		input.Upcoming = upcoming
	}

	cmd, err := p.decider.Decide(ctx, input)
	if err != nil {
		p.logger.Warn("decision failed", zap.String("conversation", conv.ID), zap.Error(err))
		p.count(ctx, models.StatsDelta{Errors: 1})
		return fallbackReply
	}

	reply, err := p.execute(ctx, conv, cmd)
	if isRetryable(err) {
		p.logger.Warn("retryable command failure, retrying once",
			zap.String("conversation", conv.ID), zap.Error(err))
		reply, err = p.execute(ctx, conv, cmd)
	}
	if err != nil {
		p.logger.Error("command execution failed",
			zap.String("conversation", conv.ID),
			zap.String("command", cmd.Kind),
			zap.Error(err))
		p.count(ctx, models.StatsDelta{Errors: 1})
		return errorReply
	}
	return reply
}

// isRetryable reports whether the failure is worth one more attempt: store
// hiccups and calendar outages, where the engine already rolled back.
func isRetryable(err error) bool {
	var perr *booking.PersistenceError
	if errors.As(err, &perr) {
		return true
	}
	var xerr *booking.ExternalServiceError
	return errors.As(err, &xerr)
}

func (p *Processor) isDuplicate(ctx context.Context, convID string, payload *models.WebhookPayload) (bool, error) {
	key := fmt.Sprintf("%s%s:%d:%d", dedupeKeyPrefix, convID, payload.ID, payload.CreatedAt)
	fresh, err := p.dedupe.SetNX(ctx, key, "1", dedupeTTL).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// extractContent returns the message text, transcribing a voice note when
// the message body is empty.
func (p *Processor) extractContent(ctx context.Context, payload *models.WebhookPayload) string {
	content := strings.TrimSpace(payload.Content)
	if content != "" {
		return content
	}
	for _, att := range payload.Attachments {
		switch att.FileType {
		case "audio":
			if att.DataURL == "" {
				continue
			}
			if p.transcriber == nil {
				p.logger.Debug("voice note skipped, no transcriber configured")
				return ""
			}
			audio, err := p.messenger.DownloadAttachment(ctx, att.DataURL)
			if err != nil {
				p.logger.Warn("failed to download voice note", zap.Error(err))
				return ""
			}
			text, err := p.transcriber.Transcribe(ctx, audio, "")
			if err != nil {
				p.logger.Warn("voice note transcription failed", zap.Error(err))
				return ""
			}
			if text = strings.TrimSpace(text); text != "" {
				return "[audio] " + text
			}
			return ""
		case "image":
			return "[el cliente envió una imagen]"
		}
	}
	return ""
}

func (p *Processor) matchesPauseKeyword(content string) bool {
	lowered := strings.ToLower(content)
	for _, kw := range p.keywords {
		if kw != "" && strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// notify sends a message only while the assistant still owns the
// conversation, and never fails the caller.
func (p *Processor) notify(ctx context.Context, convID, text string) {
	automated, err := p.gate.IsAutomated(ctx, convID)
	if err != nil || !automated {
		return
	}
	if err := p.messenger.SendReply(ctx, convID, text); err != nil {
		p.logger.Warn("failed to send notice", zap.String("conversation", convID), zap.Error(err))
	}
}

func (p *Processor) count(ctx context.Context, delta models.StatsDelta) {
	if p.stats == nil {
		return
	}
	if err := p.stats.Increment(ctx, time.Now().In(p.loc), delta); err != nil {
		p.logger.Warn("stats increment failed", zap.Error(err))
	}
}

func contactIdentity(conv *models.WebhookConversation) (phone, name string) {
	if conv == nil || conv.Contact == nil {
		return "", ""
	}
	phone = conv.Contact.PhoneNumber
	if phone == "" {
		phone = conv.Contact.Identifier
	}
	return phone, conv.Contact.Name
}
