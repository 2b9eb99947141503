package rag

import (
	"strconv"
	"strings"
	"sync"

	"github.com/alphadose/haxmap"
)

const defaultMemoryTurns = 4

type conversation struct {
	mu       sync.Mutex
	messages []Message
}

// Memory keeps a short, non-durable conversation log per (user, company).
// Only the last maxTurns question/answer pairs are kept.
type Memory struct {
	logs     *haxmap.Map[string, *conversation]
	maxTurns int
}

func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = defaultMemoryTurns
	}
	return &Memory{logs: haxmap.New[string, *conversation](), maxTurns: maxTurns}
}

func memoryKey(userID, companyID uint) string {
	return strconv.FormatUint(uint64(userID), 10) + ":" + strconv.FormatUint(uint64(companyID), 10)
}

// History returns a copy of the stored messages, oldest first.
func (m *Memory) History(userID, companyID uint) []Message {
	c, ok := m.logs.Get(memoryKey(userID, companyID))
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append records one turn and returns the number of stored messages.
func (m *Memory) Append(userID, companyID uint, question, answer string) int {
	c, _ := m.logs.GetOrSet(memoryKey(userID, companyID), &conversation{})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages,
		Message{Role: RoleUser, Text: question},
		Message{Role: RoleAssistant, Text: answer})
	if limit := m.maxTurns * 2; len(c.messages) > limit {
		c.messages = append([]Message(nil), c.messages[len(c.messages)-limit:]...)
	}
	return len(c.messages)
}

// Clear forgets one conversation.
func (m *Memory) Clear(userID, companyID uint) {
	m.logs.Del(memoryKey(userID, companyID))
}

// ClearUser forgets every conversation of a user, e.g. on logout.
func (m *Memory) ClearUser(userID uint) int {
	prefix := strconv.FormatUint(uint64(userID), 10) + ":"
	var keys []string
	m.logs.ForEach(func(k string, _ *conversation) bool {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return true
	})
	if len(keys) > 0 {
		m.logs.Del(keys...)
	}
	return len(keys)
}
