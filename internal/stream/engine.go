// Package stream implements spec.md §4.3: per-stream ordered message log,
// monotonic sequence allocator, cursors, and the post/edit/tombstone/react
// mutations that each return the canonical event to publish.
package stream

import (
	"sync"
	"time"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/ids"
)

// Config holds the capability/rate-limit constants §1 treats as input to
// the core, plus the tombstone-text Open Question decision DESIGN.md records.
type Config struct {
	MaxMessageBytes        int
	MaxReactionsPerMessage int
	TombstoneRetainText    bool
}

func DefaultConfig() Config {
	return Config{MaxMessageBytes: 4000, MaxReactionsPerMessage: 64, TombstoneRetainText: false}
}

type streamState struct {
	mu       sync.Mutex
	key      Key
	messages []*Message          // append-only, ascending seq
	byID     map[string]*Message // message_id -> message
	nextSeq  uint64
	lastTS   time.Time
	cursors  map[string]uint64 // user_id -> seq
	reacts   map[string]map[string]map[string]bool // message_id -> emoji -> user_id -> present
	prunedUpTo uint64 // messages with seq < prunedUpTo have been retention-pruned
}

func newStreamState(key Key) *streamState {
	return &streamState{
		key:     key,
		byID:    make(map[string]*Message),
		nextSeq: 1,
		cursors: make(map[string]uint64),
		reacts:  make(map[string]map[string]map[string]bool),
	}
}

// Engine owns every stream's state; callers never mutate a stream except
// through the methods below.
type Engine struct {
	mu      sync.RWMutex
	streams map[string]*streamState
	cfg     Config
}

func New(cfg Config) *Engine {
	return &Engine{streams: make(map[string]*streamState), cfg: cfg}
}

func (e *Engine) stateFor(key Key) *streamState {
	k := key.String()

	e.mu.RLock()
	s, ok := e.streams[k]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.streams[k]; ok {
		return s
	}
	s = newStreamState(key)
	e.streams[k] = s
	return s
}

// nextTS enforces §5's monotonic-with-respect-to-seq clock: ts is never
// less than the last ts emitted on this stream.
func (s *streamState) nextTS() time.Time {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if now.Before(s.lastTS) {
		now = s.lastTS
	}
	s.lastTS = now
	return now
}

// Post allocates the next seq, assigns a monotonic ts, and appends the
// message. A non-empty parentID must resolve within the same stream.
func (e *Engine) Post(key Key, authorID, text, contentType, parentID string, attachments []Attachment) (*MessageCreated, error) {
	if len(text) > e.cfg.MaxMessageBytes {
		return nil, apierr.Newf(apierr.KindBadRequest, "text exceeds %d bytes", e.cfg.MaxMessageBytes)
	}

	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != "" {
		if _, ok := s.byID[parentID]; !ok {
			return nil, apierr.BadRequest("parent_id does not resolve in this stream")
		}
	}

	m := &Message{
		MessageID:   ids.New(),
		AuthorID:    authorID,
		Seq:         s.nextSeq,
		TS:          s.nextTS(),
		ParentID:    parentID,
		ContentType: contentType,
		Text:        text,
		Attachments: attachments,
		key:         key,
	}
	s.nextSeq++
	s.messages = append(s.messages, m)
	s.byID[m.MessageID] = m

	return &MessageCreated{Key: key, Message: m.render(authorID)}, nil
}

// Edit is authorized iff caller == author; seq and ts are unchanged.
func (e *Engine) Edit(key Key, messageID, callerID string, text *string, attachments []Attachment) (*MessageEdited, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return nil, apierr.NotFound("message not found")
	}
	if m.AuthorID != callerID {
		return nil, apierr.Forbidden("only the author may edit this message")
	}
	if m.Tombstone {
		return nil, apierr.Forbidden("cannot edit a deleted message")
	}
	if text != nil {
		if len(*text) > e.cfg.MaxMessageBytes {
			return nil, apierr.Newf(apierr.KindBadRequest, "text exceeds %d bytes", e.cfg.MaxMessageBytes)
		}
		m.Text = *text
	}
	if attachments != nil {
		m.Attachments = attachments
	}
	now := s.nextTS()
	m.EditedAt = &now

	return &MessageEdited{Key: key, Message: e.withReactions(s, m, callerID).render(callerID)}, nil
}

// Tombstone is authorized iff caller == author or caller holds purge rights
// (checked by the Orchestrator before calling this). Per DESIGN.md's Open
// Question decision, deleted text is wiped from the record, not merely
// hidden, unless cfg.TombstoneRetainText is set.
func (e *Engine) Tombstone(key Key, messageID, callerID, reason string, canPurge bool) (*MessageDeleted, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return nil, apierr.NotFound("message not found")
	}
	if m.AuthorID != callerID && !canPurge {
		return nil, apierr.Forbidden("not authorized to delete this message")
	}

	m.Tombstone = true
	m.ModerationReason = reason
	if !e.cfg.TombstoneRetainText {
		m.Text = ""
		m.Attachments = nil
	}
	ts := s.nextTS()

	rendered := m.render(callerID)
	return &MessageDeleted{
		Key:       key,
		MessageID: messageID,
		RoomID:    rendered.RoomID,
		DMPeerID:  rendered.DMPeerID,
		TS:        ts,
	}, nil
}

// React adds or removes callerID's contribution to emoji on messageID. Add
// is idempotent; the returned event always carries the full per-emoji
// count summary.
func (e *Engine) React(key Key, messageID, callerID, emoji string, add bool) (*ReactionChanged, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byID[messageID]
	if !ok {
		return nil, apierr.NotFound("message not found")
	}

	byEmoji := s.reacts[messageID]
	if byEmoji == nil {
		byEmoji = make(map[string]map[string]bool)
		s.reacts[messageID] = byEmoji
	}

	if add {
		if _, exists := byEmoji[emoji]; !exists && len(byEmoji) >= e.cfg.MaxReactionsPerMessage {
			return nil, apierr.Newf(apierr.KindBadRequest, "message already has %d distinct reactions", e.cfg.MaxReactionsPerMessage)
		}
		users := byEmoji[emoji]
		if users == nil {
			users = make(map[string]bool)
			byEmoji[emoji] = users
		}
		users[callerID] = true
	} else if users, exists := byEmoji[emoji]; exists {
		delete(users, callerID)
		if len(users) == 0 {
			delete(byEmoji, emoji)
		}
	}

	return &ReactionChanged{
		Key:       key,
		MessageID: messageID,
		Emoji:     emoji,
		Added:     add,
		Counts:    reactionSummary(byEmoji, callerID),
	}, nil
}

func reactionSummary(byEmoji map[string]map[string]bool, readerID string) []ReactionCount {
	out := make([]ReactionCount, 0, len(byEmoji))
	for emoji, users := range byEmoji {
		out = append(out, ReactionCount{Emoji: emoji, Count: len(users), Me: users[readerID]})
	}
	return out
}

// withReactions stamps m.Reactions from the stream's reaction index, with
// Me set relative to readerID, before rendering it for a caller.
func (e *Engine) withReactions(s *streamState, m *Message, readerID string) *Message {
	m.Reactions = reactionSummary(s.reacts[m.MessageID], readerID)
	return m
}

// Get returns a single message as readerID would see it (reactions
// summarized, tombstoned text never leaked).
func (e *Engine) Get(key Key, messageID, readerID string) (*Message, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return nil, apierr.NotFound("message not found")
	}
	return e.withReactions(s, m, readerID).render(readerID), nil
}

// ForwardRead returns messages with seq >= fromSeq, ascending, capped at
// limit, plus the seq to resume from on the next call. A fromSeq below the
// retention-pruned floor fails with history_pruned.
func (e *Engine) ForwardRead(key Key, fromSeq uint64, limit int, readerID string) ([]*Message, uint64, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := lowerBound(s.messages, fromSeq)
	end := start
	for end < len(s.messages) && end-start < limit {
		end++
	}

	if fromSeq < s.prunedUpTo {
		return nil, 0, apierr.HistoryPruned("requested range has been retention-pruned")
	}

	out := make([]*Message, 0, end-start)
	for _, m := range s.messages[start:end] {
		out = append(out, e.withReactions(s, m, readerID).render(readerID))
	}

	next := s.nextSeq
	if len(out) > 0 {
		next = out[len(out)-1].Seq + 1
	}
	return out, next, nil
}

// BackfillRead returns the last `limit` messages with seq < beforeSeq,
// ascending, plus the seq to pass as the next beforeSeq.
func (e *Engine) BackfillRead(key Key, beforeSeq uint64, limit int, readerID string) ([]*Message, uint64, error) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	end := lowerBound(s.messages, beforeSeq)
	start := end - limit
	if start < 0 {
		start = 0
	}

	if start == end && beforeSeq != 0 && beforeSeq <= s.prunedUpTo {
		return nil, 0, apierr.HistoryPruned("requested range has been retention-pruned")
	}

	out := make([]*Message, 0, end-start)
	for _, m := range s.messages[start:end] {
		out = append(out, e.withReactions(s, m, readerID).render(readerID))
	}

	prev := uint64(0)
	if len(out) > 0 {
		prev = out[0].Seq
	}
	return out, prev, nil
}

// lowerBound returns the first index i such that messages[i].Seq >= seq.
func lowerBound(messages []*Message, seq uint64) int {
	lo, hi := 0, len(messages)
	for lo < hi {
		mid := (lo + hi) / 2
		if messages[mid].Seq < seq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// SetCursor only ever advances a user's cursor (max(existing, seq)).
func (e *Engine) SetCursor(key Key, userID string, seq uint64) uint64 {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.cursors[userID] {
		s.cursors[userID] = seq
	}
	return s.cursors[userID]
}

func (e *Engine) GetCursor(key Key, userID string) uint64 {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[userID]
}

// PruneBefore marks messages with seq < seq as retention-pruned and drops
// them from the in-memory log. Optional: callers that never prune never
// see history_pruned.
func (e *Engine) PruneBefore(key Key, seq uint64) {
	s := e.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := lowerBound(s.messages, seq)
	for _, m := range s.messages[:start] {
		delete(s.byID, m.MessageID)
		delete(s.reacts, m.MessageID)
	}
	s.messages = s.messages[start:]
	if seq > s.prunedUpTo {
		s.prunedUpTo = seq
	}
}
