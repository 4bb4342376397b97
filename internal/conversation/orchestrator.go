// Package conversation owns the bounded advisory dialogue loop: it
// drives the model gateway, streams text chunks to the caller,
// executes at most one tool call per model response, and records the
// ambient analysis trace for tool-free turns.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/finctx"
	"github.com/meridianfi/meridian/internal/model"
	"github.com/meridianfi/meridian/internal/rules"
	"github.com/meridianfi/meridian/internal/tool"
	"github.com/meridianfi/meridian/internal/trace"
)

// DefaultMaxIterations bounds model invocations per user message.
const DefaultMaxIterations = 5

// Session statuses.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionPaused    = "paused"
)

// Session is one advisory dialogue.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Skill     string    `json:"skill,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore persists sessions and their transcripts. AppendTranscript
// must write all messages of a turn atomically.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	GetTranscript(ctx context.Context, sessionID string) ([]model.Message, error)
	AppendTranscript(ctx context.Context, sessionID string, msgs []model.Message) error
}

// ToolRunner executes tool_use blocks. Implemented by *tool.Dispatcher.
type ToolRunner interface {
	Definitions() []model.ToolSchema
	Dispatch(ctx context.Context, userID, sessionID, skill string, block model.ContentBlock) (*tool.Outcome, error)
}

// Locker serializes turns per session id.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// Chunk types produced on the output stream.
const (
	ChunkText    = "text"
	ChunkToolUse = "tool_use"
	ChunkError   = "error"
)

// Chunk is one element of the lazily produced output sequence. Text
// chunks carry deltas; tool_use chunks carry the tool name and its
// JSON result; an error chunk terminates the stream.
type Chunk struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Options configures the orchestrator loop.
type Options struct {
	Model           string
	MaxTokens       int
	MaxIterations   int
	FreshnessMaxAge time.Duration
}

// Orchestrator is the top-level conversation state machine.
type Orchestrator struct {
	gateway  model.Gateway
	tools    ToolRunner
	sessions SessionStore
	builder  finctx.Builder
	recorder *trace.Recorder
	locker   Locker
	opts     Options
	logger   *zap.Logger
}

// New creates an Orchestrator. locker may be nil, in which case the
// caller must serialize turns per session id externally.
func New(
	gateway model.Gateway,
	tools ToolRunner,
	sessions SessionStore,
	builder finctx.Builder,
	recorder *trace.Recorder,
	locker Locker,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Orchestrator{
		gateway:  gateway,
		tools:    tools,
		sessions: sessions,
		builder:  builder,
		recorder: recorder,
		locker:   locker,
		opts:     opts,
		logger:   logger,
	}
}

// StartSession creates a new active session for the user.
func (o *Orchestrator) StartSession(ctx context.Context, userID, skill string) (*Session, error) {
	if skill != "" && !KnownSkill(skill) {
		return nil, fmt.Errorf("unknown skill %q", skill)
	}
	s := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Skill:     skill,
		Status:    SessionActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.sessions.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.logger.Info("session started",
		zap.String("session", s.ID),
		zap.String("user", userID),
		zap.String("skill", skill))
	return s, nil
}

// SendMessage runs one turn and returns a lazily produced, forward-only
// sequence of chunks. The transcript is persisted exactly once, at the
// end of the turn: a cancelled turn persists nothing, though tool
// effects already committed externally (e.g. a recommendation row)
// survive.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, userID, text string) (<-chan Chunk, error) {
	sess, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("session %s does not belong to user %s", sessionID, userID)
	}

	release := func() {}
	if o.locker != nil {
		release, err = o.locker.Acquire(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	transcript, err := o.sessions.GetTranscript(ctx, sessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	ch := make(chan Chunk, 16)
	go o.runTurn(ctx, sess, transcript, text, ch, release)
	return ch, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *Session, transcript []model.Message, text string, ch chan<- Chunk, release func()) {
	defer close(ch)
	defer release()

	userMsg := model.TextMessage("user", text)
	messages := append(transcript, userMsg)
	pending := []model.Message{userMsg}

	req := &model.InvokeRequest{
		Model:     o.opts.Model,
		MaxTokens: o.opts.MaxTokens,
		System:    SystemPrompt(sess.Skill),
		Messages:  messages,
		Tools:     o.tools.Definitions(),
	}

	var textProduced, recommendationCreated bool
	for iter := 0; iter < o.opts.MaxIterations; iter++ {
		resp, err := o.gateway.Invoke(ctx, req)
		if err != nil {
			o.logger.Error("model invocation failed", zap.String("session", sess.ID), zap.Error(err))
			o.emit(ctx, ch, Chunk{Type: ChunkError, Error: err.Error()})
			return
		}

		var assistantBlocks []model.ContentBlock
		var toolBlock *model.ContentBlock
		for _, b := range resp.Content {
			switch b.Type {
			case model.BlockText:
				if b.Text != "" {
					textProduced = true
					if !o.emit(ctx, ch, Chunk{Type: ChunkText, Text: b.Text}) {
						return
					}
				}
				assistantBlocks = append(assistantBlocks, b)
			case model.BlockToolUse:
				if toolBlock == nil {
					blk := b
					toolBlock = &blk
					assistantBlocks = append(assistantBlocks, b)
				} else {
					// Only the first tool_use block per model
					// response is honored; the rest are dropped.
					o.logger.Warn("discarding extra tool_use block",
						zap.String("session", sess.ID),
						zap.String("tool", b.Name))
				}
			}
		}

		if toolBlock == nil {
			if len(assistantBlocks) > 0 {
				final := model.Message{Role: "assistant", Content: assistantBlocks}
				messages = append(messages, final)
				pending = append(pending, final)
			}
			break
		}

		outcome, err := o.tools.Dispatch(ctx, sess.UserID, sess.ID, sess.Skill, *toolBlock)
		if err != nil {
			o.logger.Error("tool dispatch failed",
				zap.String("session", sess.ID),
				zap.String("tool", toolBlock.Name),
				zap.Error(err))
			o.emit(ctx, ch, Chunk{Type: ChunkError, Error: err.Error()})
			return
		}
		if outcome.RecommendationCreated {
			recommendationCreated = true
		}
		if !o.emit(ctx, ch, Chunk{
			Type:       ChunkToolUse,
			ToolName:   toolBlock.Name,
			ToolResult: json.RawMessage(outcome.Result),
		}) {
			return
		}

		partial := model.Message{Role: "assistant", Content: assistantBlocks}
		toolResult := model.ToolResultMessage(toolBlock.ID, outcome.Result, outcome.IsError)
		messages = append(messages, partial, toolResult)
		pending = append(pending, partial, toolResult)
		req.Messages = messages
	}

	if err := o.sessions.AppendTranscript(ctx, sess.ID, pending); err != nil {
		o.logger.Error("persist transcript failed", zap.String("session", sess.ID), zap.Error(err))
		o.emit(ctx, ch, Chunk{Type: ChunkError, Error: "persist transcript: " + err.Error()})
		return
	}

	if !recommendationCreated && textProduced {
		o.recordAmbientTrace(ctx, sess, text)
	}
}

// recordAmbientTrace creates the single analysis-type trace for a turn
// that produced advice without a recommendation tool call.
func (o *Orchestrator) recordAmbientTrace(ctx context.Context, sess *Session, userText string) {
	snap, err := o.builder.Build(ctx, sess.UserID)
	if err != nil {
		o.logger.Warn("ambient trace skipped: context build failed",
			zap.String("session", sess.ID), zap.Error(err))
		return
	}
	fres := rules.EvaluateFreshness(snap, o.opts.FreshnessMaxAge, time.Now())
	eval := rules.Evaluate(snap)

	inputSnapshot, err := json.Marshal(map[string]string{"user_message": userText})
	if err != nil {
		o.logger.Warn("ambient trace skipped", zap.Error(err))
		return
	}
	outputs, err := json.Marshal(eval)
	if err != nil {
		o.logger.Warn("ambient trace skipped", zap.Error(err))
		return
	}
	var warnings []string
	if fres.Warning != "" {
		warnings = append(warnings, fres.Warning)
	}
	steps := []trace.ReasoningStep{
		{Step: "evaluated_freshness"},
		{Step: "ran_rule_checks", Detail: fmt.Sprintf("%d checks applied, %d assumptions", len(eval.RulesApplied), len(eval.Assumptions))},
	}
	if _, err := o.recorder.Record(ctx, &trace.DecisionTrace{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		Type:           trace.TypeAnalysis,
		InputSnapshot:  inputSnapshot,
		ReasoningSteps: steps,
		Outputs:        outputs,
		Freshness:      &fres,
		Warnings:       warnings,
		Source:         "conversation",
	}); err != nil {
		o.logger.Warn("ambient trace failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// emit sends a chunk unless the caller has gone away.
func (o *Orchestrator) emit(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
