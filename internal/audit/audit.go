// Package audit implements the append-only audit hash chain (C9 step
// 5's sink, referenced from spec.md §4.7/§6's audit contract):
// log_action appends a sequence-numbered, hash-chained, signed entry;
// verify_complete_chain and verify_range replay the chain checking
// both the hash links and the signatures. Grounded on the teacher's
// pkg/auth (lestrrat-go/jwx) for the signing half; the chain-link
// bookkeeping has no teacher analogue and is built directly from
// spec.md §6's stated invariant (entry_hash = H(sequence ||
// previous_hash || canonical(payload))).
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/graph"
)

// Entry is one append-only audit record.
type Entry struct {
	SequenceNumber int64
	EventType      string
	Actor          string
	Payload        map[string]graph.AttrValue
	PreviousHash   string
	EntryHash      string
	Signature      []byte
	SigningKeyID   string
	EventTimestamp time.Time
}

// Signer produces and verifies signatures over an entry's hash,
// implemented by internal/audit/signing.KeyStore.
type Signer interface {
	Sign(ctx context.Context, entryHash []byte) (signature []byte, keyID string, err error)
	Verify(ctx context.Context, entryHash, signature []byte, keyID string, at time.Time) error
}

// Store is the persistence contract, implemented by
// internal/persistence/sqlite.AuditDB.
type Store interface {
	LastEntry(ctx context.Context) (*Entry, error)
	AppendEntry(ctx context.Context, e *Entry) error
	RangeEntries(ctx context.Context, fromSeq, toSeq int64) ([]*Entry, error)
	AllEntries(ctx context.Context) ([]*Entry, error)
}

// Log is the audit sink: it satisfies dispatch.AuditSink so the
// dispatcher can call it without an import cycle, and exposes the
// verifier operations spec.md §6 names directly.
type Log struct {
	Store  Store
	Signer Signer
}

var _ dispatch.AuditSink = (*Log)(nil)

// LogAction implements dispatch.AuditSink, translating one dispatched
// action into an appended, hash-chained entry. Grounded on spec.md
// §4.7 step 5 ("Emit audit entry.").
func (l *Log) LogAction(ctx context.Context, actionType string, dctx dispatch.DispatchContext, outcome map[string]graph.AttrValue, actionErr error) error {
	payload := map[string]graph.AttrValue{
		"action_type":      graph.StringAttr(actionType),
		"channel_id":       graph.StringAttr(dctx.ChannelID),
		"thought_id":       graph.StringAttr(dctx.ThoughtID),
		"task_id":          graph.StringAttr(dctx.TaskID),
		"handler":          graph.StringAttr(dctx.HandlerName),
		"origin_service":   graph.StringAttr(dctx.OriginService),
		"rationale":        graph.StringAttr(dctx.EventSummary),
		"correlation_id":   graph.StringAttr(dctx.CorrelationID),
		"guardrail_result": graph.StringAttr(dctx.GuardrailResult),
	}
	if dctx.AuthorID != "" {
		payload["author_id"] = graph.StringAttr(dctx.AuthorID)
	}
	if dctx.AuthorName != "" {
		payload["author_name"] = graph.StringAttr(dctx.AuthorName)
	}
	for k, v := range outcome {
		payload["outcome."+k] = v
	}
	if actionErr != nil {
		payload["error"] = graph.StringAttr(actionErr.Error())
	}
	actor := dctx.HandlerName
	if actor == "" {
		actor = dctx.OriginService
	}
	return l.appendEntry(ctx, actionType, actor, payload)
}

// LogEvent is the audit contract's direct entry point for callers
// outside the dispatch path (runtime lifecycle transitions, identity
// modifications) that still need a hash-chained, signed record.
func (l *Log) LogEvent(ctx context.Context, eventType, actor string, payload map[string]graph.AttrValue) error {
	return l.appendEntry(ctx, eventType, actor, payload)
}

// appendEntry computes the next sequence number and hash, signs it,
// and appends it. log_action and any future direct callers (e.g.
// config change events) both funnel through here.
func (l *Log) appendEntry(ctx context.Context, eventType, actor string, payload map[string]graph.AttrValue) error {
	prev, err := l.Store.LastEntry(ctx)
	if err != nil {
		return fmt.Errorf("load last audit entry: %w", err)
	}

	seq := int64(1)
	prevHash := ""
	if prev != nil {
		seq = prev.SequenceNumber + 1
		prevHash = prev.EntryHash
	}

	entry := &Entry{
		SequenceNumber: seq,
		EventType:      eventType,
		Actor:          actor,
		Payload:        payload,
		PreviousHash:   prevHash,
		EventTimestamp: time.Now().UTC(),
	}
	entry.EntryHash, err = computeEntryHash(entry)
	if err != nil {
		return fmt.Errorf("compute audit entry hash: %w", err)
	}

	if l.Signer != nil {
		sig, keyID, err := l.Signer.Sign(ctx, []byte(entry.EntryHash))
		if err != nil {
			return fmt.Errorf("sign audit entry %d: %w", seq, err)
		}
		entry.Signature = sig
		entry.SigningKeyID = keyID
	}

	return l.Store.AppendEntry(ctx, entry)
}

// VerificationResult is verify_complete_chain/verify_range's stated
// return shape (spec.md §6).
type VerificationResult struct {
	Valid              bool
	EntriesVerified    int
	VerificationTimeS  float64
	Errors             []string
	Warnings           []string
}

// VerifyCompleteChain replays every entry from sequence 1.
func (l *Log) VerifyCompleteChain(ctx context.Context) (*VerificationResult, error) {
	entries, err := l.Store.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit chain: %w", err)
	}
	return l.verify(ctx, entries), nil
}

// VerifyRange replays entries [fromSeq, toSeq] inclusive. Since the
// hash chain links each entry to its immediate predecessor, a range
// that doesn't start at sequence 1 can only check internal links, not
// the chain's root of trust; that limitation is reported as a warning
// rather than a failure.
func (l *Log) VerifyRange(ctx context.Context, fromSeq, toSeq int64) (*VerificationResult, error) {
	entries, err := l.Store.RangeEntries(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("load audit range: %w", err)
	}
	result := l.verify(ctx, entries)
	if fromSeq > 1 {
		result.Warnings = append(result.Warnings, "range does not start at sequence 1; chain root of trust not verified")
	}
	return result, nil
}

func (l *Log) verify(ctx context.Context, entries []*Entry) *VerificationResult {
	start := time.Now()
	result := &VerificationResult{Valid: true}

	var prevHash string
	var prevSeq int64
	for i, e := range entries {
		if i == 0 {
			prevHash = e.PreviousHash
			prevSeq = e.SequenceNumber - 1
		}
		if e.SequenceNumber != prevSeq+1 {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("sequence gap at %d: expected %d", e.SequenceNumber, prevSeq+1))
		}
		if e.PreviousHash != prevHash {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("broken hash link at sequence %d", e.SequenceNumber))
		}
		wantHash, err := computeEntryHash(e)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("recompute hash failed at sequence %d: %v", e.SequenceNumber, err))
		} else if wantHash != e.EntryHash {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry_hash mismatch at sequence %d", e.SequenceNumber))
		}

		if l.Signer != nil {
			if err := l.Signer.Verify(ctx, []byte(e.EntryHash), e.Signature, e.SigningKeyID, e.EventTimestamp); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("signature invalid at sequence %d: %v", e.SequenceNumber, err))
			}
		} else {
			result.Warnings = append(result.Warnings, "no signer configured; signatures not checked")
		}

		prevHash = e.EntryHash
		prevSeq = e.SequenceNumber
		result.EntriesVerified++
	}

	result.VerificationTimeS = time.Since(start).Seconds()
	return result
}

// canonicalPayload is a stable struct view of Entry used for hashing,
// so map iteration order in Payload never perturbs the hash.
type canonicalPayload struct {
	SequenceNumber int64
	EventType      string
	Actor          string
	Payload        map[string]graph.AttrValue
	PreviousHash   string
	EventTimestamp int64
}

func computeEntryHash(e *Entry) (string, error) {
	cp := canonicalPayload{
		SequenceNumber: e.SequenceNumber,
		EventType:      e.EventType,
		Actor:          e.Actor,
		Payload:        e.Payload,
		PreviousHash:   e.PreviousHash,
		EventTimestamp: e.EventTimestamp.UnixNano(),
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
