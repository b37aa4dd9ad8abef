package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/inappkit/internal/bus"
	"github.com/ledgerline/inappkit/internal/proposition"
)

func notificationEvent(requestID string, props ...*proposition.Proposition) bus.Event {
	var payload []any
	for _, p := range props {
		payload = append(payload, any(p.ToMap()))
	}
	return bus.Event{
		Type:   bus.TypePersonalizationNotification,
		Source: bus.SourceDecisioning,
		Data: map[string]any{
			bus.KeyRequestEventID: requestID,
			bus.KeyPayload:        payload,
		},
	}
}

func completeEvent(requestID string) bus.Event {
	return bus.Event{
		Type:   bus.TypeProcessingComplete,
		Source: bus.SourceDecisioning,
		Data:   map[string]any{bus.KeyEndingEventID: requestID},
	}
}

func applicationEvent(eventType string) bus.Event {
	return bus.Event{
		Type:   bus.TypeApplicationEvent,
		Source: bus.SourceApplication,
		Data:   map[string]any{"type": eventType},
	}
}

func TestEngine_FetchThroughRunLoop(t *testing.T) {
	const uri = "mobileapp://com.example.app/home"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persister := &fakePersister{}
	e := New(persister, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app",
		WithRequestIDGenerator(NewFixedGenerator("req-1")),
	)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	completed := make(chan bool, 1)
	id, err := e.FetchPropositions([]string{uri}, func(ok bool) { completed <- ok })
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	e.Enqueue(notificationEvent(id, inAppProp("promo-a", 1, uri), cardProp("card-a", uri, "act#1")))
	e.Enqueue(completeEvent(id))

	select {
	case ok := <-completed:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	require.Len(t, persister.updates, 1)

	// An application event now qualifies the card and registers the
	// in-app message for presentation.
	e.Enqueue(applicationEvent("trigger"))
	require.Eventually(t, func() bool {
		return e.Presentations().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(e.QualifiedContentCards(uri)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg, ok := e.Presentations().Lookup("promo-a-cons")
	require.True(t, ok)
	assert.Equal(t, "<html/>", msg.Content)

	info, ok := e.InfoFor("promo-a-cons")
	require.True(t, ok)
	assert.Equal(t, "promo-a", info.ID)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}

	assert.False(t, e.Enqueue(applicationEvent("trigger")), "enqueue after stop must fail")
}

func TestEngine_FailedFetchFiresCallbackFalse(t *testing.T) {
	const uri = "mobileapp://com.example.app/home"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persister := &fakePersister{}
	e := New(persister, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app",
		WithRequestIDGenerator(NewFixedGenerator("req-1")),
	)
	go e.Run(ctx)

	completed := make(chan bool, 1)
	id, err := e.FetchPropositions([]string{uri}, func(ok bool) { completed <- ok })
	require.NoError(t, err)

	e.Enqueue(notificationEvent(id, inAppProp("promo-a", 1, uri)))
	e.Enqueue(bus.Event{
		Type:   bus.TypeRequestFailed,
		Source: bus.SourceDecisioning,
		Data:   map[string]any{bus.KeyRequestEventID: id},
	})

	select {
	case ok := <-completed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}
	assert.Empty(t, persister.updates, "no persistence after a failed fetch")
}

func TestEngine_FetchDefaultsToAppSurface(t *testing.T) {
	e := New(&fakePersister{}, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app",
		WithRequestIDGenerator(NewFixedGenerator("req-1")),
	)

	// Invalid URIs are dropped; an empty result falls back to the app's
	// default surface. The queue is inspected directly since Run is not
	// started here.
	_, err := e.FetchPropositions([]string{"https://nope", "#bad"}, nil)
	require.NoError(t, err)

	tk, ok := e.queue.TryDequeue()
	require.True(t, ok)
	require.NotNil(t, tk.track)
	require.Len(t, tk.track.surfaces, 1)
	assert.Equal(t, "mobileapp://com.example.app", tk.track.surfaces[0].URI())
}

func TestEngine_Bootstrap(t *testing.T) {
	const uri = "mobileapp://com.example.app/home"
	ctx := context.Background()

	t.Run("reinstalls cached rules", func(t *testing.T) {
		persister := &fakePersister{
			loadResult: map[string][]*proposition.Proposition{
				uri: {inAppProp("promo-a", 1, uri), inAppProp("promo-b", 2, uri)},
			},
		}
		e := New(persister, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app")
		require.NoError(t, e.Bootstrap(ctx))

		rules := e.messageRules.Rules()
		require.Len(t, rules, 2)
		assert.Equal(t, "promo-a", rules[0].PropositionID)

		_, ok := e.propositions.Resolve("promo-b")
		assert.True(t, ok)
	})

	t.Run("empty cache is a no-op", func(t *testing.T) {
		e := New(&fakePersister{}, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app")
		require.NoError(t, e.Bootstrap(ctx))
		assert.Empty(t, e.messageRules.Rules())
	})

	t.Run("load failure surfaces", func(t *testing.T) {
		persister := &fakePersister{loadErr: errors.New("corrupt db")}
		e := New(persister, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app")
		assert.Error(t, e.Bootstrap(ctx))
	})

	t.Run("invalid cached surface skipped", func(t *testing.T) {
		persister := &fakePersister{
			loadResult: map[string][]*proposition.Proposition{
				"not-a-surface": {inAppProp("promo-a", 1, uri)},
			},
		}
		e := New(persister, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app")
		require.NoError(t, e.Bootstrap(ctx))
		assert.Empty(t, e.messageRules.Rules())
	})
}

func TestEngine_UnknownEventTypeIgnored(t *testing.T) {
	e := New(&fakePersister{}, &fakeHistory{}, bus.DispatcherFunc(func(bus.Event) {}), "com.example.app")
	// Must not panic or mutate anything.
	e.processEvent(context.Background(), bus.Event{Type: "something.else"})
	assert.Empty(t, e.messageRules.Rules())
}
