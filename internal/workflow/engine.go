// Package workflow drives one candidate text from extraction through
// duplicate resolution, schema decisions, and conflict resolution to a
// single store commit. Everything before the commit lives in a Session;
// the tabular store is mutated exactly once, at commit.
package workflow

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/talent-ops/intake-cli/internal/conflict"
	"github.com/talent-ops/intake-cli/internal/cost"
	"github.com/talent-ops/intake-cli/internal/extract"
	"github.com/talent-ops/intake-cli/internal/history"
	"github.com/talent-ops/intake-cli/internal/mirror"
	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/schema"
	"github.com/talent-ops/intake-cli/internal/tabular"
)

// Engine exposes the workflow entry points. Store and extractor are
// required; mirror and history are optional collaborators whose failures
// never fail a run.
type Engine struct {
	store     tabular.Store
	extractor extract.Extractor
	mirror    mirror.Mirror
	history   history.Store
	sessions  *Manager

	costs         *cost.Calculator
	modelID       string
	identityField string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMirror attaches a remote mirror, pushed best-effort after commit.
func WithMirror(m mirror.Mirror) EngineOption {
	return func(e *Engine) {
		e.mirror = m
	}
}

// WithHistory attaches a run history store, written best-effort at commit.
func WithHistory(h history.Store) EngineOption {
	return func(e *Engine) {
		e.history = h
	}
}

// WithSessions replaces the default session manager.
func WithSessions(m *Manager) EngineOption {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithIdentityField overrides the duplicate-detection key field.
func WithIdentityField(name string) EngineOption {
	return func(e *Engine) {
		e.identityField = name
	}
}

// WithCost sets the calculator and model id used to price run history rows.
func WithCost(c *cost.Calculator, modelID string) EngineOption {
	return func(e *Engine) {
		e.costs = c
		e.modelID = modelID
	}
}

// DefaultIdentityField is the duplicate-detection key when none is
// configured.
const DefaultIdentityField = "氏名"

// NewEngine creates the workflow engine.
func NewEngine(store tabular.Store, extractor extract.Extractor, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		extractor:     extractor,
		sessions:      NewManager(),
		costs:         cost.New(nil),
		identityField: DefaultIdentityField,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions returns the engine's session manager.
func (e *Engine) Sessions() *Manager {
	return e.sessions
}

// IdentityField returns the configured duplicate-detection key field.
func (e *Engine) IdentityField() string {
	return e.identityField
}

// BeginRun extracts fields from the text and opens a session in
// ExtractionComplete. Extraction failure aborts before any session exists.
func (e *Engine) BeginRun(ctx context.Context, text string) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewError(KindValidation, "text must not be empty")
	}

	schemaCols, err := e.store.CurrentSchema(ctx)
	if err != nil {
		return nil, WrapError(KindStoreUnavailable, err, "workflow: read schema")
	}

	res, err := e.extractor.Extract(ctx, text, schemaCols)
	if err != nil {
		return nil, WrapError(KindExtractionFailure, err, "workflow: extract")
	}

	sess := e.sessions.Create(&Session{
		State:        StateExtractionComplete,
		OriginalText: text,
		Fields:       res.Fields,
		Proposals:    res.NewFieldProposals,
		Usage:        res.Usage,
	})
	zap.L().Info("run started",
		zap.String("session_id", sess.ID),
		zap.Int("proposals", len(sess.Proposals)))
	return sess, nil
}

// ConfirmIdentity records the operator-confirmed identity value and runs
// duplicate search. Zero matches advance straight to the schema phase; any
// matches park the session in DuplicateFound for the operator to choose.
func (e *Engine) ConfirmIdentity(ctx context.Context, sessionID, name string) (*Session, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateExtractionComplete {
		return nil, e.badTransition(sess, "confirm identity")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewErrorf(KindValidation, "%s must not be empty", e.identityField)
	}
	sess.Fields[e.identityField] = name

	matches, err := e.store.FindByField(ctx, e.identityField, name)
	if err != nil {
		return nil, WrapError(KindStoreUnavailable, err, "workflow: duplicate search")
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Timestamp != matches[j].Timestamp {
			return matches[i].Timestamp > matches[j].Timestamp
		}
		return matches[i].ID > matches[j].ID
	})

	if len(matches) == 0 {
		if err := e.enterSchemaPhase(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}

	sess.Duplicates = matches
	sess.State = StateDuplicateFound
	return sess, nil
}

// ChooseMergeTarget resolves the duplicate choice: targetID 0 means treat
// the candidate as a brand-new record, otherwise targetID must name one of
// the presented duplicates.
func (e *Engine) ChooseMergeTarget(ctx context.Context, sessionID string, targetID int) (*Session, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateDuplicateFound {
		return nil, e.badTransition(sess, "choose merge target")
	}

	if targetID != 0 {
		found := false
		for _, d := range sess.Duplicates {
			if d.ID == targetID {
				found = true
				break
			}
		}
		if !found {
			return nil, NewErrorf(KindValidation, "record %d is not among the found duplicates", targetID)
		}
		sess.TargetID = targetID
		sess.State = StateMergeTargetSelected
	}

	if err := e.enterSchemaPhase(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResolveSchema applies the operator's decisions for every pending
// new-field proposal. A missing or malformed decision rejects the whole
// batch and leaves the session unchanged.
func (e *Engine) ResolveSchema(ctx context.Context, sessionID string, decisions map[string]schema.Decision) (*Session, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateSchemaPending {
		return nil, e.badTransition(sess, "resolve schema")
	}

	fields, err := schema.Apply(sess.Fields, sess.Proposals, decisions)
	if err != nil {
		return nil, WrapError(KindValidation, err, "workflow: apply schema decisions")
	}
	sess.Fields = fields
	sess.Proposals = nil

	if err := e.afterSchemaPhase(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResolveConflict records the operator's decision for one surfaced field.
// Partial resolution across multiple calls is allowed; once every surfaced
// entry is decided the session advances to ReadyToCommit.
func (e *Engine) ResolveConflict(ctx context.Context, sessionID, fieldName string, action conflict.Action, override string) (*Session, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != StateConflictPending {
		return nil, e.badTransition(sess, "resolve conflict")
	}

	var entry *conflict.Entry
	for i := range sess.Conflicts {
		if sess.Conflicts[i].FieldName == fieldName {
			entry = &sess.Conflicts[i]
			break
		}
	}
	if entry == nil {
		return nil, NewErrorf(KindValidation, "field %q has no pending conflict", fieldName)
	}

	value, err := conflict.Resolve(*entry, action, override)
	if err != nil {
		return nil, WrapError(KindValidation, err, "workflow: resolve conflict")
	}
	sess.Fields[fieldName] = value
	sess.resolved[fieldName] = true

	if sess.Unresolved() == 0 {
		sess.State = StateReadyToCommit
	}
	return sess, nil
}

// Commit performs the single store mutation for the session, then pushes
// the mirror and records history best-effort. force commits a session with
// unresolved conflicts, whose accumulator holds the stored values for the
// undecided fields. Store failure preserves the session for retry; any
// warnings describe soft mirror or history failures.
func (e *Engine) Commit(ctx context.Context, sessionID string, force bool) (*model.Record, []string, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	switch sess.State {
	case StateReadyToCommit:
	case StateConflictPending:
		if !force {
			return nil, nil, NewErrorf(KindInvalidTransition,
				"session %s has %d unresolved conflicts", sess.ID, sess.Unresolved())
		}
	default:
		return nil, nil, e.badTransition(sess, "commit")
	}

	rec, err := e.store.Commit(ctx, sess.Fields, sess.TargetID)
	if err != nil {
		if errors.Is(err, tabular.ErrSchemaConflict) {
			return nil, nil, WrapError(KindValidation, err, "workflow: commit")
		}
		return nil, nil, WrapError(KindStoreUnavailable, err, "workflow: commit")
	}
	sess.State = StateCommitted
	if e.modelID != "" {
		e.costs.Log(e.modelID, sess.Usage)
	}

	var warnings []string
	if e.mirror != nil {
		if err := e.pushMirror(ctx); err != nil {
			zap.L().Warn("mirror push failed after commit", zap.Error(err))
			warnings = append(warnings, "mirror sync failed: "+err.Error())
		}
	}
	if e.history != nil {
		if err := e.recordHistory(ctx, sess, rec); err != nil {
			zap.L().Warn("history insert failed after commit", zap.Error(err))
			warnings = append(warnings, "history record failed: "+err.Error())
		}
	}

	e.sessions.Delete(sess.ID)
	zap.L().Info("run committed",
		zap.String("session_id", sess.ID),
		zap.Int("record_id", rec.ID),
		zap.Bool("update", sess.TargetID > 0))
	return rec, warnings, nil
}

func (e *Engine) badTransition(sess *Session, op string) *Error {
	return NewErrorf(KindInvalidTransition, "cannot %s in state %s", op, sess.State)
}

// enterSchemaPhase routes a session that has settled its duplicate choice.
// No pending proposals means the schema phase is skipped entirely.
func (e *Engine) enterSchemaPhase(ctx context.Context, sess *Session) error {
	if len(sess.Proposals) > 0 {
		sess.State = StateSchemaPending
		return nil
	}
	return e.afterSchemaPhase(ctx, sess)
}

func (e *Engine) afterSchemaPhase(ctx context.Context, sess *Session) error {
	if sess.TargetID > 0 {
		return e.enterConflictPhase(ctx, sess)
	}
	sess.State = StateReadyToCommit
	return nil
}

// enterConflictPhase diffs the accumulator against the merge target.
// Non-surfaced fields are auto-carried into the accumulator; when nothing
// surfaces the session is immediately ready to commit.
func (e *Engine) enterConflictPhase(ctx context.Context, sess *Session) error {
	target, err := e.store.Get(ctx, sess.TargetID)
	if err != nil {
		return WrapError(KindStoreUnavailable, err, "workflow: load merge target")
	}
	if target == nil {
		return NewErrorf(KindValidation, "merge target %d no longer exists", sess.TargetID)
	}

	surfaced, carried := conflict.Diff(*target, sess.Fields, e.identityField)
	sess.Fields = carried
	sess.Conflicts = surfaced
	sess.resolved = make(map[string]bool, len(surfaced))

	if len(surfaced) == 0 {
		sess.State = StateReadyToCommit
	} else {
		sess.State = StateConflictPending
	}
	return nil
}

func (e *Engine) pushMirror(ctx context.Context) error {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	return e.mirror.Push(ctx, snap)
}

func (e *Engine) recordHistory(ctx context.Context, sess *Session, rec *model.Record) error {
	entry := history.Entry{
		RecordID:         rec.ID,
		IsUpdate:         sess.TargetID > 0,
		OriginalText:     sess.OriginalText,
		Fields:           rec.Fields,
		PromptTokens:     int(sess.Usage.PromptTokens),
		CompletionTokens: int(sess.Usage.CompletionTokens),
	}
	if e.costs != nil && e.modelID != "" {
		entry.CostUSD = e.costs.Estimate(e.modelID, sess.Usage)
	}
	_, err := e.history.RecordRun(ctx, entry)
	return err
}
