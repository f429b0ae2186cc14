package relay

import (
	"context"
	"log/slog"
	"time"

	v1 "ripple/contracts/relay/v1"
)

// Broadcaster is the injected surface through which non-realtime code (REST
// handlers, background jobs) pushes notifications into the relay. Callers
// never reach into the Hub directly.
type Broadcaster interface {
	// Generic delivery primitives.
	ToTopic(topicID string, env v1.Envelope)
	ToUser(userID string, env v1.Envelope)
	ToAll(env v1.Envelope)

	// Domain helpers invoked after durable REST-side writes.
	GroupAvatarUpdated(ctx context.Context, chatID, avatarURL string)
	GroupNameUpdated(ctx context.Context, chatID, name string)
	GroupParticipantAdded(ctx context.Context, chatID string, participant v1.UserSummary)
	GroupParticipantRemoved(ctx context.Context, chatID, removedUserID string)
	ProfileUpdated(ctx context.Context, update v1.UserProfileUpdatedPayload)
}

// RESTBridge implements Broadcaster over the hub. Group events fan to each
// participant's personal topic so members receive them without having the
// chat topic open. All deliveries are best-effort.
type RESTBridge struct {
	log   *slog.Logger
	hub   *Hub
	chats ChatStore
}

// NewRESTBridge constructs the bridge.
func NewRESTBridge(log *slog.Logger, hub *Hub, chats ChatStore) *RESTBridge {
	return &RESTBridge{log: log, hub: hub, chats: chats}
}

var _ Broadcaster = (*RESTBridge)(nil)

// ToTopic delivers env to every member of a topic.
func (b *RESTBridge) ToTopic(topicID string, env v1.Envelope) {
	b.hub.BroadcastTopic(topicID, env, "")
}

// ToUser delivers env to every connection of a user.
func (b *RESTBridge) ToUser(userID string, env v1.Envelope) {
	b.hub.BroadcastUser(userID, env)
}

// ToAll delivers env to every connection.
func (b *RESTBridge) ToAll(env v1.Envelope) {
	b.hub.BroadcastAll(env, "")
}

func (b *RESTBridge) GroupAvatarUpdated(ctx context.Context, chatID, avatarURL string) {
	b.fanToParticipants(ctx, chatID, envelopeOf(v1.TypeGroupAvatarUpdated, v1.GroupAvatarUpdatedPayload{
		ChatID:    chatID,
		AvatarURL: avatarURL,
	}, time.Now().UTC()))
}

func (b *RESTBridge) GroupNameUpdated(ctx context.Context, chatID, name string) {
	b.fanToParticipants(ctx, chatID, envelopeOf(v1.TypeGroupNameUpdated, v1.GroupNameUpdatedPayload{
		ChatID: chatID,
		Name:   name,
	}, time.Now().UTC()))
}

func (b *RESTBridge) GroupParticipantAdded(ctx context.Context, chatID string, participant v1.UserSummary) {
	b.fanToParticipants(ctx, chatID, envelopeOf(v1.TypeGroupParticipantAdded, v1.GroupParticipantAddedPayload{
		ChatID:      chatID,
		Participant: participant,
	}, time.Now().UTC()))
}

func (b *RESTBridge) GroupParticipantRemoved(ctx context.Context, chatID, removedUserID string) {
	env := envelopeOf(v1.TypeGroupParticipantRemoved, v1.GroupParticipantRemovedPayload{
		ChatID:        chatID,
		RemovedUserID: removedUserID,
	}, time.Now().UTC())
	b.fanToParticipants(ctx, chatID, env)
	// The removed user is no longer in the participant list yet still needs
	// the notice to drop the chat locally.
	b.hub.BroadcastUser(removedUserID, env)
}

// ProfileUpdated delivers an avatar_updated to every co-member of the user's
// chats (deduplicated, excluding the user), then a global user_profile_updated.
func (b *RESTBridge) ProfileUpdated(ctx context.Context, update v1.UserProfileUpdatedPayload) {
	if b == nil || update.UserID == "" {
		return
	}

	now := time.Now().UTC()

	chatIDs, err := b.chats.ChatsFor(ctx, update.UserID)
	if err != nil {
		b.log.Error("bridge.profile.chats.fail", "user_id", update.UserID, "err", err)
	} else {
		avatarEnv := envelopeOf(v1.TypeAvatarUpdated, v1.AvatarUpdatedPayload{
			UserID:    update.UserID,
			AvatarURL: update.AvatarURL,
			Name:      update.Name,
		}, now)

		seen := map[string]struct{}{update.UserID: {}}
		for _, chatID := range chatIDs {
			members, err := b.chats.Participants(ctx, chatID)
			if err != nil {
				b.log.Error("bridge.profile.participants.fail", "chat_id", chatID, "err", err)
				continue
			}
			for _, uid := range members {
				if _, dup := seen[uid]; dup {
					continue
				}
				seen[uid] = struct{}{}
				b.hub.BroadcastUser(uid, avatarEnv)
			}
		}
	}

	b.hub.BroadcastAll(envelopeOf(v1.TypeUserProfileUpdated, update, now), "")
}

func (b *RESTBridge) fanToParticipants(ctx context.Context, chatID string, env v1.Envelope) {
	if b == nil || chatID == "" {
		return
	}

	members, err := b.chats.Participants(ctx, chatID)
	if err != nil {
		b.log.Error("bridge.fan.participants.fail", "chat_id", chatID, "type", env.Type, "err", err)
		return
	}
	for _, uid := range members {
		b.hub.BroadcastUser(uid, env)
	}
}
