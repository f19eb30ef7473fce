package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	"salonflow/models"
	"salonflow/services/agent"
	"salonflow/services/booking"
	"salonflow/services/ratelimit"

	conversationRepo "salonflow/database/repository/conversation"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type fakeLimiter struct {
	deny bool
}

func (f *fakeLimiter) Check(ctx context.Context, sender string, now time.Time) (ratelimit.Result, error) {
	if f.deny {
		return ratelimit.Result{Allowed: false, ResetAt: now.Add(time.Hour)}, nil
	}
	return ratelimit.Result{Allowed: true, Remaining: 10}, nil
}

type fakeBuffer struct {
	enqueued map[string][]models.Fragment
	turn     *models.Turn
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{enqueued: map[string][]models.Fragment{}}
}

func (f *fakeBuffer) Enqueue(ctx context.Context, conversationID string, fragment models.Fragment) error {
	f.enqueued[conversationID] = append(f.enqueued[conversationID], fragment)
	return nil
}

func (f *fakeBuffer) Collect(ctx context.Context, conversationID string) (*models.Turn, error) {
	turn := f.turn
	f.turn = nil
	return turn, nil
}

type pauseCall struct {
	Reason   string
	PausedBy string
}

type fakeGate struct {
	paused     map[string]pauseCall
	pausePlan  []bool // successive IsAutomated answers; empty means derive from paused map
	resolved   []string
	planCursor int
}

func newFakeGate() *fakeGate {
	return &fakeGate{paused: map[string]pauseCall{}}
}

func (f *fakeGate) EnsureConversation(ctx context.Context, id, senderPhone, clientName string) (*models.Conversation, error) {
	return &models.Conversation{ID: id, SenderPhone: senderPhone, ClientName: clientName, ControlState: models.ControlAutomated}, nil
}

func (f *fakeGate) IsAutomated(ctx context.Context, id string) (bool, error) {
	if f.planCursor < len(f.pausePlan) {
		answer := f.pausePlan[f.planCursor]
		f.planCursor++
		return answer, nil
	}
	_, paused := f.paused[id]
	return !paused, nil
}

func (f *fakeGate) Pause(ctx context.Context, id, reason, pausedBy string) error {
	if existing, ok := f.paused[id]; ok {
		if existing.Reason == models.PauseReasonHumanReply || reason != models.PauseReasonHumanReply {
			return nil
		}
	}
	f.paused[id] = pauseCall{Reason: reason, PausedBy: pausedBy}
	return nil
}

func (f *fakeGate) Resolve(ctx context.Context, id string) error {
	delete(f.paused, id)
	f.resolved = append(f.resolved, id)
	return nil
}

func (f *fakeGate) Touch(ctx context.Context, id string) {}

type fakeConvs struct {
	conversations map[string]*models.Conversation
}

func (f *fakeConvs) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	if conv, ok := f.conversations[id]; ok {
		return conv, nil
	}
	return nil, conversationRepo.ErrNotFound
}

func (f *fakeConvs) Upsert(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error) {
	return conversation, nil
}

func (f *fakeConvs) SetControl(ctx context.Context, id, controlState, pauseReason, pausedBy string, pausedAt *time.Time) error {
	return nil
}

func (f *fakeConvs) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeConvs) FindBySenderPhone(ctx context.Context, phone string) (*models.Conversation, error) {
	for _, conv := range f.conversations {
		if conv.SenderPhone == phone {
			return conv, nil
		}
	}
	return nil, conversationRepo.ErrNotFound
}

type fakeBookings struct {
	created     []models.BookingInput
	failCreates int
	next        *models.Booking
}

func (f *fakeBookings) Create(ctx context.Context, input models.BookingInput) (*models.Booking, error) {
	if f.failCreates > 0 {
		f.failCreates--
		return nil, &booking.PersistenceError{Op: "create", Err: context.DeadlineExceeded}
	}
	f.created = append(f.created, input)
	return &models.Booking{
		ID: "bk-1", ProviderID: input.ProviderID, SenderPhone: input.SenderPhone,
		ClientName: input.ClientName, Start: input.Start, End: input.Start.Add(time.Hour),
		Services: input.Services, TotalPrice: 300, Status: models.BookingStatusConfirmed,
	}, nil
}

func (f *fakeBookings) Update(ctx context.Context, id string, changes models.BookingChanges) (*models.Booking, error) {
	return f.next, nil
}

func (f *fakeBookings) Cancel(ctx context.Context, id string) error { return nil }

func (f *fakeBookings) NextUpcoming(ctx context.Context, phone string) (*models.Booking, error) {
	return f.next, nil
}

func (f *fakeBookings) Appointments(ctx context.Context, phone string) ([]models.Booking, []models.Booking, error) {
	return nil, nil, nil
}

type fakeSlots struct{}

func (f *fakeSlots) AvailableSlots(ctx context.Context, provider *models.Provider, at time.Time, duration time.Duration, limit int) ([]time.Time, error) {
	return nil, nil
}

type fakeCatalogSource struct{}

func (f *fakeCatalogSource) ListServices(ctx context.Context) ([]models.Service, error) {
	return []models.Service{{ID: "svc-1", Name: "corte", Price: 300, DurationMinutes: 30, Active: true}}, nil
}

func (f *fakeCatalogSource) ListProviders(ctx context.Context) ([]models.Provider, error) {
	return []models.Provider{{ID: "prov-1", Name: "Lucia", Active: true}}, nil
}

func (f *fakeCatalogSource) Info(ctx context.Context) (*models.SalonInfo, error) { return nil, nil }

func (f *fakeCatalogSource) FindServiceByName(ctx context.Context, name string) (*models.Service, error) {
	if strings.EqualFold(name, "corte") {
		return &models.Service{ID: "svc-1", Name: "corte", Price: 300, DurationMinutes: 30, Active: true}, nil
	}
	return nil, nil
}

func (f *fakeCatalogSource) FindProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	if strings.EqualFold(name, "lucia") {
		return &models.Provider{ID: "prov-1", Name: "Lucia", Active: true}, nil
	}
	return nil, nil
}

type fakeDecider struct {
	cmd *models.Command
	err error
}

func (f *fakeDecider) Decide(ctx context.Context, input agent.DecisionInput) (*models.Command, error) {
	return f.cmd, f.err
}

type fakeContexts struct {
	entries map[string][]models.ContextMessage
}

func newFakeContexts() *fakeContexts {
	return &fakeContexts{entries: map[string][]models.ContextMessage{}}
}

func (f *fakeContexts) Append(ctx context.Context, conversationID, role, content string) error {
	f.entries[conversationID] = append(f.entries[conversationID], models.ContextMessage{Role: role, Content: content})
	return nil
}

func (f *fakeContexts) History(ctx context.Context, conversationID string) ([]models.ContextMessage, error) {
	return f.entries[conversationID], nil
}

type fakeMessenger struct {
	sent  []string
	notes []string
}

func (f *fakeMessenger) SendReply(ctx context.Context, conversationID, content string) error {
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeMessenger) SendPrivateNote(ctx context.Context, conversationID, content string) error {
	f.notes = append(f.notes, content)
	return nil
}

func (f *fakeMessenger) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

type fakeStats struct {
	total models.StatsDelta
}

func (f *fakeStats) Increment(ctx context.Context, day time.Time, delta models.StatsDelta) error {
	f.total.MessagesReceived += delta.MessagesReceived
	f.total.TurnsProcessed += delta.TurnsProcessed
	f.total.BookingsCreated += delta.BookingsCreated
	f.total.BookingsUpdated += delta.BookingsUpdated
	f.total.BookingsCancelled += delta.BookingsCancelled
	f.total.HumanHandoffs += delta.HumanHandoffs
	f.total.RateLimited += delta.RateLimited
	f.total.Errors += delta.Errors
	return nil
}

func (f *fakeStats) Range(ctx context.Context, from, to time.Time) ([]models.DailyStats, error) {
	return nil, nil
}

type fixture struct {
	processor *Processor
	limiter   *fakeLimiter
	buffer    *fakeBuffer
	gate      *fakeGate
	convs     *fakeConvs
	bookings  *fakeBookings
	decider   *fakeDecider
	contexts  *fakeContexts
	messenger *fakeMessenger
	stats     *fakeStats
}

func newProcessorFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	fx := &fixture{
		limiter:   &fakeLimiter{},
		buffer:    newFakeBuffer(),
		gate:      newFakeGate(),
		convs:     &fakeConvs{conversations: map[string]*models.Conversation{}},
		bookings:  &fakeBookings{},
		decider:   &fakeDecider{cmd: &models.Command{Kind: models.CommandReply, Text: "Hola"}},
		contexts:  newFakeContexts(),
		messenger: &fakeMessenger{},
		stats:     &fakeStats{},
	}
	fx.processor = New(Deps{
		Limiter:   fx.limiter,
		Buffer:    fx.buffer,
		Gate:      fx.gate,
		Convs:     fx.convs,
		Bookings:  fx.bookings,
		Slots:     &fakeSlots{},
		Catalog:   &fakeCatalogSource{},
		Decider:   fx.decider,
		Contexts:  fx.contexts,
		Messenger: fx.messenger,
		Stats:     fx.stats,
		Dedupe:    redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Keywords:  []string{"agente", "humano", "persona real"},
		Location:  time.UTC,
		Logger:    zap.NewNop(),
	})
	return fx
}

func incomingMessage(id int64, content string) *models.WebhookPayload {
	return &models.WebhookPayload{
		Event:       models.EventMessageCreated,
		ID:          id,
		Content:     content,
		MessageType: "incoming",
		CreatedAt:   time.Now().Unix(),
		Sender:      &models.WebhookSender{Type: "contact", Name: "Ana"},
		Conversation: &models.WebhookConversation{
			ID:      42,
			Contact: &models.WebhookContact{Name: "Ana", PhoneNumber: "+525512345678"},
		},
	}
}

func TestIncomingMessageIsQueued(t *testing.T) {
	fx := newProcessorFixture(t)

	result, err := fx.processor.HandleEvent(context.Background(), incomingMessage(1, "Hola"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != "queued" {
		t.Fatalf("status = %q, want queued", result.Status)
	}
	if got := fx.buffer.enqueued["42"]; len(got) != 1 || got[0].Content != "Hola" {
		t.Fatalf("enqueued = %+v", got)
	}
	if fx.stats.total.MessagesReceived != 1 {
		t.Fatalf("messages counted = %d", fx.stats.total.MessagesReceived)
	}
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	fx := newProcessorFixture(t)
	ctx := context.Background()
	payload := incomingMessage(1, "Hola")

	if _, err := fx.processor.HandleEvent(ctx, payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := fx.processor.HandleEvent(ctx, payload)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result.Reason != "duplicate" {
		t.Fatalf("reason = %q, want duplicate", result.Reason)
	}
	if len(fx.buffer.enqueued["42"]) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(fx.buffer.enqueued["42"]))
	}
}

func TestHumanAgentReplyPausesConversation(t *testing.T) {
	fx := newProcessorFixture(t)
	payload := incomingMessage(1, "Ya te atiendo")
	payload.MessageType = "outgoing"
	payload.Sender = &models.WebhookSender{Type: "user", Name: "Carla"}

	result, err := fx.processor.HandleEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != "transferred" || result.Reason != models.PauseReasonHumanReply {
		t.Fatalf("result = %+v", result)
	}
	call, ok := fx.gate.paused["42"]
	if !ok || call.Reason != models.PauseReasonHumanReply || call.PausedBy != "agent:Carla" {
		t.Fatalf("pause call = %+v", call)
	}
	if fx.stats.total.HumanHandoffs != 1 {
		t.Fatalf("handoffs = %d", fx.stats.total.HumanHandoffs)
	}
}

func TestRateLimitedMessageGetsNoticeAndIsNotBuffered(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.limiter.deny = true

	result, err := fx.processor.HandleEvent(context.Background(), incomingMessage(1, "Hola"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != "rate_limited" {
		t.Fatalf("status = %q", result.Status)
	}
	if len(fx.buffer.enqueued["42"]) != 0 {
		t.Fatal("rate limited message must not be buffered")
	}
	if len(fx.messenger.sent) != 1 || fx.messenger.sent[0] != throttleNotice {
		t.Fatalf("sent = %v", fx.messenger.sent)
	}
	if fx.stats.total.RateLimited != 1 {
		t.Fatalf("rate limited counter = %d", fx.stats.total.RateLimited)
	}
}

func TestKeywordPausesButStillBuffers(t *testing.T) {
	fx := newProcessorFixture(t)

	result, err := fx.processor.HandleEvent(context.Background(), incomingMessage(1, "Quiero hablar con un HUMANO por favor"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != "transferred" || result.Reason != models.PauseReasonKeywordMatch {
		t.Fatalf("result = %+v", result)
	}
	if len(fx.buffer.enqueued["42"]) != 1 {
		t.Fatal("keyword message must still be buffered for the human to see")
	}
	if call := fx.gate.paused["42"]; call.Reason != models.PauseReasonKeywordMatch {
		t.Fatalf("pause call = %+v", call)
	}
}

func TestPrivateNoteIsIgnored(t *testing.T) {
	fx := newProcessorFixture(t)
	payload := incomingMessage(1, "nota interna")
	payload.Private = true

	result, err := fx.processor.HandleEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Reason != "private_note" {
		t.Fatalf("reason = %q", result.Reason)
	}
	if len(fx.buffer.enqueued["42"]) != 0 {
		t.Fatal("private note must not be buffered")
	}
}

func TestResolvedStatusReactivates(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.gate.paused["42"] = pauseCall{Reason: models.PauseReasonHumanReply}

	result, err := fx.processor.HandleEvent(context.Background(), &models.WebhookPayload{
		Event:        models.EventStatusChanged,
		Status:       "resolved",
		Conversation: &models.WebhookConversation{ID: 42, Status: "resolved"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Status != "reactivated" {
		t.Fatalf("status = %q", result.Status)
	}
	if len(fx.gate.resolved) != 1 || fx.gate.resolved[0] != "42" {
		t.Fatalf("resolved = %v", fx.gate.resolved)
	}
}

func TestProcessTurnRepliesAndRecordsContext(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.convs.conversations["42"] = &models.Conversation{
		ID: "42", SenderPhone: "+525512345678", ClientName: "Ana",
		ControlState: models.ControlAutomated,
	}
	fx.buffer.turn = &models.Turn{ConversationID: "42", Content: "Hola quiero una cita"}

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.messenger.sent) != 1 || fx.messenger.sent[0] != "Hola" {
		t.Fatalf("sent = %v", fx.messenger.sent)
	}
	entries := fx.contexts.entries["42"]
	if len(entries) != 2 || entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Fatalf("context = %+v", entries)
	}
	if fx.stats.total.TurnsProcessed != 1 {
		t.Fatalf("turns = %d", fx.stats.total.TurnsProcessed)
	}
}

func TestProcessTurnEmptyBufferIsNoOp(t *testing.T) {
	fx := newProcessorFixture(t)

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.messenger.sent) != 0 {
		t.Fatalf("sent = %v", fx.messenger.sent)
	}
}

func TestPausedTurnIsRecordedButNotAnswered(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.gate.paused["42"] = pauseCall{Reason: models.PauseReasonHumanReply}
	fx.buffer.turn = &models.Turn{ConversationID: "42", Content: "Sigo esperando"}

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.messenger.sent) != 0 {
		t.Fatal("paused conversation must not get an automated reply")
	}
	entries := fx.contexts.entries["42"]
	if len(entries) != 1 || entries[0].Role != "user" {
		t.Fatalf("context = %+v", entries)
	}
}

func TestReplySuppressedWhenGateFlipsMidTurn(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.buffer.turn = &models.Turn{ConversationID: "42", Content: "Hola"}
	// Automated when the turn starts, paused by the time we would send.
	fx.gate.pausePlan = []bool{true, false}

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.messenger.sent) != 0 {
		t.Fatal("reply must be suppressed after a mid-turn takeover")
	}
	// The draft reaches the human agent as a private note instead.
	if len(fx.messenger.notes) != 1 || !strings.Contains(fx.messenger.notes[0], "Hola") {
		t.Fatalf("notes = %v, want the suppressed draft", fx.messenger.notes)
	}
}

func TestPersistenceErrorIsRetriedOnce(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.bookings.failCreates = 1
	start := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	fx.decider.cmd = &models.Command{
		Kind: models.CommandCreateBooking, ProviderName: "Lucia",
		Date: start, Time: "10:00", Services: []string{"corte"}, ClientName: "Ana",
	}
	fx.convs.conversations["42"] = &models.Conversation{
		ID: "42", SenderPhone: "+525512345678", ClientName: "Ana",
		ControlState: models.ControlAutomated,
	}
	fx.buffer.turn = &models.Turn{ConversationID: "42", Content: "corte mañana a las 10"}

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.bookings.created) != 1 {
		t.Fatalf("creates = %d, want 1 after retry", len(fx.bookings.created))
	}
	if len(fx.messenger.sent) != 1 || !strings.Contains(fx.messenger.sent[0], "Tu cita quedó") {
		t.Fatalf("sent = %v", fx.messenger.sent)
	}
}

func TestDecisionFailureFallsBackToApology(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.decider.err = agent.ErrUnknownAction
	fx.decider.cmd = nil
	fx.buffer.turn = &models.Turn{ConversationID: "42", Content: "???"}

	if err := fx.processor.ProcessTurn(context.Background(), "42"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.messenger.sent) != 1 || fx.messenger.sent[0] != fallbackReply {
		t.Fatalf("sent = %v", fx.messenger.sent)
	}
	if fx.stats.total.Errors != 1 {
		t.Fatalf("errors = %d", fx.stats.total.Errors)
	}
}
