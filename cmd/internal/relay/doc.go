// Package relay is Ripple's realtime session and message-delivery relay.
//
// It owns connection lifecycle (authenticate, mark online, seed room
// subscriptions, tear down), refcounted presence, topic membership and
// fan-out, the message-status state machine (sent -> delivered -> read), and
// the stateless router for ephemeral signals (typing, reactions, deletions,
// call signaling). Durable users/chats/messages live behind the store
// interfaces in store.go; the relay holds only ids and the two message
// fields it is allowed to mutate.
package relay
