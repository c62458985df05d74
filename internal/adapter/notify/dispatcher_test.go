package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

var _ ports.Notifier = (*Dispatcher)(nil)

type recordingSink struct {
	mu     sync.Mutex
	events []ports.Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Deliver(_ context.Context, e ports.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func event(id string) ports.Event {
	return ports.Event{ContractID: id, Action: domain.AuditContractCreated, ActorID: "alice", OccurredAt: time.Now()}
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("down")}
	d := NewDispatcher(8, 2, logger.NewDiscard(), a, b)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), event("c")))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 5, a.count())
	assert.Equal(t, 5, b.count(), "a failing sink still sees every event")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(1, 1, logger.NewDiscard(), sink)

	// one event held by the worker, one in the buffer
	require.NoError(t, d.Notify(context.Background(), event("1")))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Notify(context.Background(), event("2")))

	assert.ErrorIs(t, d.Notify(context.Background(), event("3")), ErrQueueFull)

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(1, 1, logger.NewDiscard())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Notify(context.Background(), event("c")), ErrClosed)
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(4, 1, logger.NewDiscard(), sink)
	require.NoError(t, d.Notify(context.Background(), event("c")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sink.block)
}

func TestWebhookSink_Deliver(t *testing.T) {
	var got ports.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second, logger.NewDiscard())
	require.NoError(t, sink.Deliver(context.Background(), event("c-9")))
	assert.Equal(t, "c-9", got.ContractID)
	assert.Equal(t, domain.AuditContractCreated, got.Action)
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second, logger.NewDiscard())
	err := sink.Deliver(context.Background(), event("c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLogSink_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogSink(logger.NewDiscard()).Deliver(context.Background(), event("c")))
}
