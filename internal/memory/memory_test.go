package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, size int) *Store {
	t.Helper()
	s, err := New(size)
	require.NoError(t, err)
	return s
}

func TestNewRejectsNegativeSize(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)
}

func TestHistoryUnknownUserIsEmpty(t *testing.T) {
	s := newTestStore(t, 4)
	h := s.History(42)
	assert.NotNil(t, h)
	assert.Empty(t, h)
}

func TestAppendKeepsOrder(t *testing.T) {
	s := newTestStore(t, 4)
	s.AppendExchange(1, llm.UserTurn("hi"), llm.AssistantTurn("hello"))
	s.Append(1, llm.UserTurn("how are you"))

	assert.Equal(t, []llm.Turn{
		llm.UserTurn("hi"),
		llm.AssistantTurn("hello"),
		llm.UserTurn("how are you"),
	}, s.History(1))
}

func TestFIFOEviction(t *testing.T) {
	const size = 3
	s := newTestStore(t, size)

	evicted := 0
	s.OnEvict = func(n int) { evicted += n }

	for i := range size + 1 {
		s.AppendExchange(1,
			llm.UserTurn(fmt.Sprintf("q%d", i)),
			llm.AssistantTurn(fmt.Sprintf("a%d", i)),
		)
		assert.LessOrEqual(t, len(s.History(1)), 2*size)
	}

	h := s.History(1)
	require.Len(t, h, 2*size)
	assert.NotContains(t, h, llm.UserTurn("q0"))
	assert.NotContains(t, h, llm.AssistantTurn("a0"))
	for i := 1; i <= size; i++ {
		assert.Equal(t, llm.UserTurn(fmt.Sprintf("q%d", i)), h[2*(i-1)])
		assert.Equal(t, llm.AssistantTurn(fmt.Sprintf("a%d", i)), h[2*(i-1)+1])
	}
	assert.Equal(t, 2, evicted)
}

func TestZeroSizeStoresNothing(t *testing.T) {
	s := newTestStore(t, 0)
	s.AppendExchange(1, llm.UserTurn("hi"), llm.AssistantTurn("hello"))
	assert.Empty(t, s.History(1))
	assert.Equal(t, 0, s.Users())
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := newTestStore(t, 2)
	s.AppendExchange(1, llm.UserTurn("hi"), llm.AssistantTurn("hello"))

	h := s.History(1)
	h[0] = llm.UserTurn("tampered")
	_ = append(h, llm.UserTurn("extra"))

	assert.Equal(t, []llm.Turn{llm.UserTurn("hi"), llm.AssistantTurn("hello")}, s.History(1))
}

func TestReset(t *testing.T) {
	s := newTestStore(t, 2)
	s.AppendExchange(1, llm.UserTurn("hi"), llm.AssistantTurn("hello"))
	s.AppendExchange(2, llm.UserTurn("yo"), llm.AssistantTurn("hey"))

	s.Reset(1)
	assert.Empty(t, s.History(1))
	assert.Len(t, s.History(2), 2)
}

func TestSweep(t *testing.T) {
	s := newTestStore(t, 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Clock = func() time.Time { return base }
	s.AppendExchange(1, llm.UserTurn("old"), llm.AssistantTurn("old"))
	s.Clock = func() time.Time { return base.Add(2 * time.Hour) }
	s.AppendExchange(2, llm.UserTurn("new"), llm.AssistantTurn("new"))

	removed := s.Sweep(base.Add(time.Hour))
	assert.Equal(t, 1, removed)
	assert.Empty(t, s.History(1))
	assert.Len(t, s.History(2), 2)
}

func TestConcurrentAppendsRespectCap(t *testing.T) {
	const size = 4
	s := newTestStore(t, size)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := int64(i % 3)
			s.AppendExchange(userID, llm.UserTurn("q"), llm.AssistantTurn("a"))
			assert.LessOrEqual(t, len(s.History(userID)), 2*size)
		}()
	}
	wg.Wait()

	for userID := range int64(3) {
		h := s.History(userID)
		require.Len(t, h, 2*size)
		for j := 0; j < len(h); j += 2 {
			assert.Equal(t, llm.RoleUser, h[j].Role, "exchanges stay paired")
			assert.Equal(t, llm.RoleAssistant, h[j+1].Role, "exchanges stay paired")
		}
	}
}
