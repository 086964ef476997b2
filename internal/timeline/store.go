package timeline

import (
	"sort"
	"time"

	"chatdesk/internal/models"
)

// MergeOutcome describes what a store mutation actually did. Duplicate
// deliveries are a normal part of reconciling push and REST inputs, so they
// are reported as an outcome rather than an error.
type MergeOutcome string

const (
	OutcomeInserted         MergeOutcome = "inserted"
	OutcomeResolved         MergeOutcome = "resolved"
	OutcomeUpdated          MergeOutcome = "updated"
	OutcomeDuplicateIgnored MergeOutcome = "duplicate_ignored"
)

// Store maintains the ordered, deduplicated message sequence for one
// conversation. It merges three input streams: backward page loads, local
// optimistic sends and push deliveries. All methods are total: they never
// fail, they only report outcomes, and every mutation leaves the sequence in
// a consistent state.
//
// Ordering: primary key is the message timestamp; ties are broken by arrival
// order (stable), never by lexical ID comparison. The store itself is not
// goroutine safe; the owning session serializes access.
type Store struct {
	conversationID string
	messages       []models.Message
	byID           map[string]int
	byToken        map[string]int
}

func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		byID:           make(map[string]int),
		byToken:        make(map[string]int),
	}
}

func (s *Store) ConversationID() string {
	return s.conversationID
}

func (s *Store) Len() int {
	return len(s.messages)
}

// Messages returns a copy of the current sequence in display order.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get returns the message with the given ID, if present.
func (s *Store) Get(id string) (models.Message, bool) {
	if idx, ok := s.byID[id]; ok {
		return s.messages[idx], true
	}
	return models.Message{}, false
}

// MergeOlderPage prepends a page of strictly older history. Messages whose
// ID is already present are dropped; the survivors are sorted ascending by
// timestamp and placed before everything currently stored. The merge is
// atomic: the existing sequence is only replaced once the full page has been
// deduplicated.
func (s *Store) MergeOlderPage(page []models.Message) int {
	fresh := make([]models.Message, 0, len(page))
	seen := make(map[string]bool, len(page))
	for _, msg := range page {
		if msg.ID == "" || seen[msg.ID] {
			continue
		}
		if _, exists := s.byID[msg.ID]; exists {
			continue
		}
		seen[msg.ID] = true
		fresh = append(fresh, msg)
	}

	if len(fresh) == 0 {
		return 0
	}

	// Pages may arrive newest-first from the API; normalize to ascending.
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})

	merged := make([]models.Message, 0, len(fresh)+len(s.messages))
	merged = append(merged, fresh...)
	merged = append(merged, s.messages...)
	s.messages = merged
	s.reindex()

	return len(fresh)
}

// AppendProvisional places a locally submitted, not-yet-confirmed message at
// the tail of the sequence. Outbound sends always appear at the most recent
// position regardless of timestamp.
func (s *Store) AppendProvisional(msg models.Message) MergeOutcome {
	if msg.CorrelationToken == "" {
		return OutcomeDuplicateIgnored
	}
	if _, exists := s.byToken[msg.CorrelationToken]; exists {
		return OutcomeDuplicateIgnored
	}
	if _, exists := s.byID[msg.ID]; exists {
		return OutcomeDuplicateIgnored
	}

	msg.Provisional = true
	s.messages = append(s.messages, msg)
	idx := len(s.messages) - 1
	s.byID[msg.ID] = idx
	s.byToken[msg.CorrelationToken] = idx
	return OutcomeInserted
}

// AppendConfirmed merges a server-confirmed message. If a provisional entry
// with the same correlation token exists it is replaced in place (same
// position, no duplicate). A message whose ID is already present only has
// its mutable fields merged.
func (s *Store) AppendConfirmed(msg models.Message) MergeOutcome {
	if msg.CorrelationToken != "" {
		if idx, ok := s.byToken[msg.CorrelationToken]; ok {
			s.resolveAt(idx, msg)
			return OutcomeResolved
		}
	}
	if idx, ok := s.byID[msg.ID]; ok {
		if s.mergeInto(idx, msg) {
			return OutcomeUpdated
		}
		return OutcomeDuplicateIgnored
	}

	msg.Provisional = false
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = len(s.messages) - 1
	return OutcomeInserted
}

// AppendPush merges a message delivered out of band. New messages are
// inserted at their ascending-timestamp position; known messages only have
// status and receipt fields updated, and status never moves backward.
//
// A push can carry the confirmation for an optimistic send before the REST
// reply lands; correlation-token dedup handles that arrival order the same
// way AppendConfirmed would.
func (s *Store) AppendPush(msg models.Message) MergeOutcome {
	if msg.CorrelationToken != "" {
		if idx, ok := s.byToken[msg.CorrelationToken]; ok {
			s.resolveAt(idx, msg)
			return OutcomeResolved
		}
	}
	if idx, ok := s.byID[msg.ID]; ok {
		if s.mergeInto(idx, msg) {
			return OutcomeUpdated
		}
		return OutcomeDuplicateIgnored
	}

	msg.Provisional = false
	idx := s.insertIndex(msg.Timestamp)
	if idx == len(s.messages) {
		s.messages = append(s.messages, msg)
		s.byID[msg.ID] = idx
		return OutcomeInserted
	}

	s.messages = append(s.messages, models.Message{})
	copy(s.messages[idx+1:], s.messages[idx:])
	s.messages[idx] = msg
	s.reindex()
	return OutcomeInserted
}

// FailProvisional marks the provisional entry for the token as failed, in
// place. The entry stays visible so the agent can see it and resubmit; a
// resubmission creates a fresh token and a fresh entry. Failed is terminal:
// the token mapping is dropped so no later confirmation can revive it.
func (s *Store) FailProvisional(token string) bool {
	idx, ok := s.byToken[token]
	if !ok {
		return false
	}
	s.messages[idx].Status = models.StatusFailed
	delete(s.byToken, token)
	return true
}

// resolveAt swaps the provisional entry at idx for its confirmed identity
// without moving it. Status and receipt fields are merged so that push and
// REST confirmations produce the same result in either arrival order.
func (s *Store) resolveAt(idx int, confirmed models.Message) {
	existing := s.messages[idx]

	confirmed.Provisional = false
	if !existing.Status.CanTransitionTo(confirmed.Status) {
		confirmed.Status = existing.Status
	}
	if confirmed.SentAt == nil {
		confirmed.SentAt = existing.SentAt
	}
	if confirmed.DeliveredAt == nil {
		confirmed.DeliveredAt = existing.DeliveredAt
	}
	if confirmed.ReadAt == nil {
		confirmed.ReadAt = existing.ReadAt
	}

	delete(s.byToken, existing.CorrelationToken)
	delete(s.byID, existing.ID)
	s.messages[idx] = confirmed
	s.byID[confirmed.ID] = idx
}

// mergeInto folds the mutable fields of incoming into the entry at idx.
// Returns true when anything actually changed.
func (s *Store) mergeInto(idx int, incoming models.Message) bool {
	entry := &s.messages[idx]
	changed := false

	if incoming.Status != "" && incoming.Status != entry.Status &&
		entry.Status.CanTransitionTo(incoming.Status) {
		entry.Status = incoming.Status
		changed = true
	}
	if entry.SentAt == nil && incoming.SentAt != nil {
		entry.SentAt = incoming.SentAt
		changed = true
	}
	if entry.DeliveredAt == nil && incoming.DeliveredAt != nil {
		entry.DeliveredAt = incoming.DeliveredAt
		changed = true
	}
	if entry.ReadAt == nil && incoming.ReadAt != nil {
		entry.ReadAt = incoming.ReadAt
		changed = true
	}
	if !incoming.Timestamp.IsZero() && entry.Timestamp.IsZero() {
		entry.Timestamp = incoming.Timestamp
		changed = true
	}

	return changed
}

// insertIndex finds the ascending-timestamp position for a new arrival.
// Equal timestamps sort after existing entries, preserving arrival order.
// Messages without a usable timestamp go to the tail.
func (s *Store) insertIndex(ts time.Time) int {
	if ts.IsZero() {
		return len(s.messages)
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		existing := s.messages[i].Timestamp
		if existing.IsZero() {
			continue
		}
		if !existing.After(ts) {
			return i + 1
		}
	}
	return 0
}

func (s *Store) reindex() {
	s.byID = make(map[string]int, len(s.messages))
	s.byToken = make(map[string]int)
	for i, msg := range s.messages {
		s.byID[msg.ID] = i
		if msg.Provisional && msg.CorrelationToken != "" && msg.Status != models.StatusFailed {
			s.byToken[msg.CorrelationToken] = i
		}
	}
}
