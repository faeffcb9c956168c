// Package session holds the state a console user builds up during one page
// session: the most recent analysis and the chat transcript.
package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/seanblong/codelens/pkg/models"
)

var ErrEmptyMessage = errors.New("empty chat message")

const subscriberBuffer = 16

// Session is safe for concurrent use.
//
// Analysis submissions and chat submissions are each numbered from 1. Only
// the latest analysis may complete; older completions are stale. Chat
// replies are committed to the transcript in submission order, so a reply
// that arrives early waits for its predecessors.
type Session struct {
	ID string

	mu sync.Mutex

	analysis    *models.AnalysisResponse
	analysisSeq uint64

	transcript []models.ChatMessage
	entrySeq   uint64
	chatSeq    uint64
	nextReply  uint64
	pending    map[uint64]models.ChatMessage

	subs   map[chan models.ChatMessage]struct{}
	closed bool
}

func New(id string) *Session {
	return &Session{
		ID:        id,
		nextReply: 1,
		pending:   make(map[uint64]models.ChatMessage),
		subs:      make(map[chan models.ChatMessage]struct{}),
	}
}

// AnalysisTicket identifies one analysis submission.
type AnalysisTicket uint64

// BeginAnalysis starts a new analysis and drops the cached one.
func (s *Session) BeginAnalysis() AnalysisTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisSeq++
	s.analysis = nil
	return AnalysisTicket(s.analysisSeq)
}

// Current reports whether t is still the latest analysis submission.
func (s *Session) Current(t AnalysisTicket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(t) == s.analysisSeq
}

// CompleteAnalysis caches a (nil for changelogs) result for t. It returns
// false and changes nothing when t is stale.
func (s *Session) CompleteAnalysis(t AnalysisTicket, a *models.AnalysisResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(t) != s.analysisSeq {
		return false
	}
	s.analysis = a
	return true
}

// Analysis returns the cached analysis, or nil before the first one
// completes.
func (s *Session) Analysis() *models.AnalysisResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

// ChatTicket identifies one chat submission and carries the analysis that
// was current when it was made.
type ChatTicket struct {
	seq     uint64
	Message string
	Context *models.AnalysisResponse
}

// BeginChat appends the user message to the transcript. Blank messages are
// rejected with ErrEmptyMessage and leave the transcript untouched.
func (s *Session) BeginChat(message string) (ChatTicket, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return ChatTicket{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatSeq++
	s.appendLocked(models.RoleUser, msg)
	return ChatTicket{seq: s.chatSeq, Message: msg, Context: s.analysis}, nil
}

// CompleteChat records the outcome of t. A failure becomes a system entry.
func (s *Session) CompleteChat(t ChatTicket, reply string, err error) {
	entry := models.ChatMessage{Role: models.RoleAssistant, Content: reply}
	if err != nil {
		entry = models.ChatMessage{Role: models.RoleSystem, Content: "Error: " + err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.seq < s.nextReply || t.seq > s.chatSeq {
		return
	}
	s.pending[t.seq] = entry
	for {
		next, ok := s.pending[s.nextReply]
		if !ok {
			break
		}
		delete(s.pending, s.nextReply)
		s.nextReply++
		s.appendLocked(next.Role, next.Content)
	}
}

// Transcript returns a copy of the committed transcript.
func (s *Session) Transcript() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Subscribe streams every entry committed after the call. The channel is
// closed by cancel or when the session closes. Entries are dropped for a
// subscriber whose buffer is full.
func (s *Session) Subscribe() (<-chan models.ChatMessage, func()) {
	ch := make(chan models.ChatMessage, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ends every subscription. The session keeps its data.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Session) appendLocked(role models.Role, content string) {
	s.entrySeq++
	m := models.ChatMessage{Seq: s.entrySeq, Role: role, Content: content}
	s.transcript = append(s.transcript, m)
	for ch := range s.subs {
		select {
		case ch <- m:
		default:
		}
	}
}
