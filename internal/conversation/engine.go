package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valooran/patient-intake-system/internal/diagnosis"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var engineTracer = otel.Tracer("intake.internal.conversation")

// UnavailableReply is returned whenever a turn cannot be completed.
const UnavailableReply = "I'm having trouble connecting right now. Please try again in a moment."

const (
	degradedReplyRunes = 100

	defaultMaxTokens   int32   = 800
	defaultTemperature float32 = 0.6
	defaultLLMTimeout          = 60 * time.Second
)

// Turn outcomes, also used as metric labels.
const (
	OutcomeQuestion      = "question"
	OutcomeConclusion    = "conclusion"
	OutcomeMalformed     = "malformed"
	OutcomeUpstreamError = "upstream_error"
	OutcomeStoreError    = "store_error"
)

// TurnResult is the normalized answer to one chat turn. Diagnostic fields are only
// serialized when the model returned a schema-valid conclusion.
type TurnResult struct {
	Reply        string
	IsConclusion bool
	Disease      string
	Severity     diagnosis.Severity
	RedFlags     []string
	Medications  []string
	Hospitals    []string
	Confidence   string

	// Structured is set when the diagnostic fields above are populated.
	Structured bool
	Outcome    string
}

type replyJSON struct {
	Reply        string `json:"reply"`
	IsConclusion bool   `json:"isConclusion"`
}

type conclusionJSON struct {
	Reply        string             `json:"reply"`
	IsConclusion bool               `json:"isConclusion"`
	Disease      string             `json:"disease"`
	Severity     diagnosis.Severity `json:"severity"`
	RedFlags     []string           `json:"redFlags"`
	Medications  []string           `json:"medications"`
	Hospitals    []string           `json:"hospitals"`
	Confidence   string             `json:"confidence"`
}

func (r TurnResult) MarshalJSON() ([]byte, error) {
	if !r.Structured {
		return json.Marshal(replyJSON{Reply: r.Reply, IsConclusion: r.IsConclusion})
	}
	return json.Marshal(conclusionJSON{
		Reply:        r.Reply,
		IsConclusion: r.IsConclusion,
		Disease:      r.Disease,
		Severity:     r.Severity,
		RedFlags:     nonNil(r.RedFlags),
		Medications:  nonNil(r.Medications),
		Hospitals:    nonNil(r.Hospitals),
		Confidence:   r.Confidence,
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type EngineOption func(*Engine)

// WithModel overrides the provider's default model id.
func WithModel(model string) EngineOption {
	return func(e *Engine) { e.model = model }
}

func WithMaxTokens(n int32) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

func WithTemperature(t float32) EngineOption {
	return func(e *Engine) { e.temperature = t }
}

// WithTimeout bounds the upstream call. Zero disables the engine-side timeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

func WithSystemPrompt(prompt string) EngineOption {
	return func(e *Engine) {
		if strings.TrimSpace(prompt) != "" {
			e.systemPrompt = prompt
		}
	}
}

func WithMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTurnLocker adds a cross-process lock taken after the in-process one, for stores
// shared by several API processes.
func WithTurnLocker(l TurnLocker) EngineOption {
	return func(e *Engine) { e.sharedLocks = l }
}

// WithProvider names the upstream in errors and logs.
func WithProvider(name string) EngineOption {
	return func(e *Engine) { e.provider = name }
}

// Engine runs the diagnostic conversation: one upstream attempt per turn, strictly
// ordered per user, history only ever holding well-formed turns.
type Engine struct {
	client       LLMClient
	store        SessionStore
	locks        *KeyedMutex
	sharedLocks  TurnLocker
	logger       *logging.Logger
	metrics      *metrics.ConversationMetrics
	model        string
	provider     string
	systemPrompt string
	maxTokens    int32
	temperature  float32
	timeout      time.Duration
}

func NewEngine(client LLMClient, store SessionStore, logger *logging.Logger, opts ...EngineOption) *Engine {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		client:       client,
		store:        store,
		locks:        NewKeyedMutex(),
		logger:       logger,
		systemPrompt: DefaultSystemPrompt,
		maxTokens:    defaultMaxTokens,
		temperature:  defaultTemperature,
		timeout:      defaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn processes one user message. It never returns an error: every failure is
// folded into a normal-shaped TurnResult.
func (e *Engine) HandleTurn(ctx context.Context, userID, message string) TurnResult {
	ctx, span := engineTracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(attribute.String("intake.user_id", userID))

	release, err := e.locks.Lock(ctx, userID)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("turn abandoned waiting for session lock", "user_id", userID, "error", err)
		return e.finish(unavailable(OutcomeUpstreamError))
	}
	defer release()

	if e.sharedLocks != nil {
		releaseShared, err := e.sharedLocks.Lock(ctx, userID)
		if err != nil {
			span.RecordError(err)
			if ctx.Err() != nil {
				e.logger.Warn("turn abandoned waiting for shared session lock", "user_id", userID, "error", err)
				return e.finish(unavailable(OutcomeUpstreamError))
			}
			e.logger.Error("failed to take shared session lock", "user_id", userID, "error", err)
			return e.finish(unavailable(OutcomeStoreError))
		}
		defer releaseShared()
	}

	session, err := e.session(ctx, userID)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("failed to load session", "user_id", userID, "error", err)
		return e.finish(unavailable(OutcomeStoreError))
	}

	userTurn := ChatMessage{Role: ChatRoleUser, Content: message}
	candidate := append(cloneMessages(session.History), userTurn)

	raw, err := e.complete(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		return e.finish(unavailable(OutcomeUpstreamError))
	}

	conclusion, err := diagnosis.Parse(raw)
	if err != nil {
		e.logger.Warn("model returned malformed payload",
			"user_id", userID,
			"error", err,
			"raw", raw,
		)
		if err := e.persist(ctx, session, userTurn); err != nil {
			span.RecordError(err)
			e.logger.Error("failed to persist user turn", "user_id", userID, "error", err)
			return e.finish(unavailable(OutcomeStoreError))
		}
		return e.finish(degraded(raw))
	}

	assistantTurn := ChatMessage{Role: ChatRoleAssistant, Content: conclusion.Reply}
	if err := e.persist(ctx, session, userTurn, assistantTurn); err != nil {
		span.RecordError(err)
		e.logger.Error("failed to persist turn", "user_id", userID, "error", err)
		return e.finish(unavailable(OutcomeStoreError))
	}

	result := fromConclusion(conclusion)
	e.logger.Info("turn completed",
		"user_id", userID,
		"user_turns", session.UserTurns()+1,
		"is_conclusion", result.IsConclusion,
		"severity", string(result.Severity),
	)
	return e.finish(result)
}

func (e *Engine) finish(result TurnResult) TurnResult {
	e.metrics.ObserveTurn(result.Outcome)
	return result
}

func (e *Engine) session(ctx context.Context, userID string) (Session, error) {
	session, ok, err := e.store.Load(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if ok {
		return session, nil
	}
	return e.store.Create(ctx, userID, e.seed())
}

func (e *Engine) seed() ChatMessage {
	return ChatMessage{Role: ChatRoleSystem, Content: e.systemPrompt}
}

// persist appends turns to the session. A session evicted during the upstream call is
// rebuilt from the history the turn was computed against.
func (e *Engine) persist(ctx context.Context, session Session, turns ...ChatMessage) error {
	err := e.store.Append(ctx, session.UserID, turns...)
	if !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	e.logger.Info("session evicted mid-turn, restoring", "user_id", session.UserID)

	restored, err := e.store.Create(ctx, session.UserID, session.History[0])
	if err != nil {
		return err
	}
	replay := make([]ChatMessage, 0, len(session.History)+len(turns))
	if len(restored.History) <= 1 {
		replay = append(replay, session.History[1:]...)
	}
	replay = append(replay, turns...)
	return e.store.Append(ctx, session.UserID, replay...)
}

func (e *Engine) complete(ctx context.Context, history []ChatMessage) (string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.llm")
	defer span.End()

	schema := diagnosis.Schema()
	req := LLMRequest{
		Model:       e.model,
		Messages:    history,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		OutputSchema: &OutputSchema{
			Name:   diagnosis.SchemaName,
			Strict: true,
			Schema: schema,
		},
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.client.Complete(callCtx, req)
	latency := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	e.metrics.ObserveLLMLatency(status, latency.Seconds())
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Float64("intake.llm.latency_ms", float64(latency.Milliseconds())),
			attribute.String("intake.llm.provider", e.provider),
			attribute.Int("intake.llm.input_tokens", int(resp.Usage.InputTokens)),
			attribute.Int("intake.llm.output_tokens", int(resp.Usage.OutputTokens)),
			attribute.String("intake.llm.stop_reason", resp.StopReason),
		)
	}
	if err != nil {
		err = asUpstreamError(e.provider, err)
		span.RecordError(err)
		e.logger.Warn("llm completion failed", "provider", e.provider, "status", status, "latency_ms", latency.Milliseconds(), "error", err)
		return "", err
	}
	e.metrics.AddTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	text := strings.TrimSpace(resp.Text)
	e.logger.Debug("llm completion finished",
		"provider", e.provider,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return text, nil
}

func unavailable(outcome string) TurnResult {
	return TurnResult{Reply: UnavailableReply, Outcome: outcome}
}

// degraded salvages an unparseable payload into a short reply.
func degraded(raw string) TurnResult {
	reply := raw
	if runes := []rune(raw); len(runes) > degradedReplyRunes {
		reply = string(runes[:degradedReplyRunes]) + "..."
	}
	lower := strings.ToLower(raw)
	return TurnResult{
		Reply:        reply,
		IsConclusion: strings.Contains(lower, "final diagnosis") || strings.Contains(lower, "based on your symptoms"),
		Outcome:      OutcomeMalformed,
	}
}

func fromConclusion(c diagnosis.Conclusion) TurnResult {
	if !c.IsConclusion {
		return TurnResult{Reply: c.Reply, Outcome: OutcomeQuestion}
	}
	return TurnResult{
		Reply:        c.Reply,
		IsConclusion: true,
		Disease:      c.Disease,
		Severity:     c.Severity,
		RedFlags:     nonNil(c.RedFlags),
		Medications:  nonNil(c.Medications),
		Hospitals:    nonNil(c.Hospitals),
		Confidence:   c.Confidence,
		Structured:   true,
		Outcome:      OutcomeConclusion,
	}
}
