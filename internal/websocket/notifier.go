package websocket

import (
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/services"
)

// PendingCountAction is the action of the pending backlog digest.
const PendingCountAction = "signals.pending_count"

// Notifier routes signal lifecycle notifications to hub topics. Approved
// signals reach the public feed, admins see everything and owners see their
// own signals. Withdrawals go to the public feed only.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a Notifier publishing through hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// SignalChanged publishes a lifecycle notification.
func (n *Notifier) SignalChanged(action string, signal models.Signal) {
	msg := Encode(action, signal)
	if msg == nil {
		return
	}
	n.hub.Publish(msg, signalTopics(action, signal)...)
}

// PendingCount publishes the size of the review backlog to admins.
func (n *Notifier) PendingCount(count int) {
	if msg := Encode(PendingCountAction, map[string]int{"count": count}); msg != nil {
		n.hub.Publish(msg, TopicAdmin)
	}
}

func signalTopics(action string, signal models.Signal) []string {
	if action == services.ActionSignalWithdrawn {
		return []string{TopicFeed}
	}
	topics := []string{TopicAdmin}
	if signal.OwnerID != "" {
		topics = append(topics, UserTopic(signal.OwnerID))
	}
	if signal.Status == models.StatusApproved {
		topics = append(topics, TopicFeed)
	}
	return topics
}
