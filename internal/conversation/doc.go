// Package conversation owns the single active conversation of a client session.
//
// # Store
//
// The Store is the only mutator of the active State:
//
//	store := conversation.NewStore(apiClient, events, logger)
//
// Key operations:
//
//   - Reset(): Replace the active state with a fresh empty conversation
//   - Load(ctx, id): Replace the active state with the backend's copy of id
//   - BeginSend(text): Optimistically append a user message and mark sending
//   - ResolveSend(ticket, resp): Append the assistant reply, adopting the id
//   - ResolveSendFailure(ticket, notice): Append a local failure notice
//   - FinishSend(ticket): Clear the sending flag
//
// # State Instances
//
// Every Reset or Load creates a new State instance identified by a UUID. A
// send is tagged with the instance it was issued for, and results arriving
// after the instance has been replaced are dropped with ErrStale. A reply to
// conversation A can therefore never appear inside conversation B.
//
// # Events
//
// The Store and the history manager publish Events on a Broadcaster. The
// terminal renderer subscribes and redraws from them:
//
//	ch, _ := events.Subscribe(ctx)
//	for ev := range ch { ... }
//
// Publishing never blocks; a slow subscriber loses events rather than
// stalling a send.
package conversation
