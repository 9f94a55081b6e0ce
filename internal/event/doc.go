/*
Package event provides a type-safe, pub/sub event system for the learning engine.

The event system enables decoupled communication between engine components by
allowing publishers to emit events and subscribers to react to them without
direct dependencies: the engine announces recorded approvals, new suggestions,
learned rule batches, and threshold changes, and the HTTP surface relays
every notification to connected stream clients.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve type information. It provides
both synchronous and asynchronous event publishing patterns.

# Event Types

Approval log events:
  - approval.recorded: An approval event was appended to the log
  - log.rotated: The approvals log reached its size threshold and was archived

Learning events:
  - suggestion.created: A detection run produced a suggestion
  - rules.learned: An accepted suggestion's rules were added to the store
  - feedback.recorded: A decision outcome was recorded

Meta-learning events:
  - thresholds.recalibrated: Tier detection parameters were adjusted

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.SuggestionCreated,
		Data: event.SuggestionCreatedData{
			SuggestionID: s.ID,
			Confidence:   s.Confidence,
		},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.RulesLearned,
		Data: event.RulesLearnedData{BatchID: batch.ID, Added: added},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.RulesLearned, func(e event.Event) {
		data := e.Data.(event.RulesLearnedData)
		logging.Info().Str("batch", data.BatchID).Msg("rules learned")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, you can create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SuggestionCreated, handler)
	bus.PublishSync(event.Event{Type: event.SuggestionCreated, Data: data})

# Testing

The package provides utilities for testing:

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple
goroutines. Both publishing and subscribing operations are protected by
internal synchronization.

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the
underlying pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()

This allows future migration to distributed message brokers if needed while
maintaining the current API.
*/
package event
