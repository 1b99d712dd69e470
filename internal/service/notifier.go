package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

const (
	// NotificationStream is the JetStream stream holding notifications
	NotificationStream = "NOTIFICATIONS"

	notificationSubjects = "notify.*"
)

// NotificationSubject returns the subject notifications of level are published on
func NotificationSubject(level model.NotificationLevel) string {
	return fmt.Sprintf("notify.%s", level)
}

// NATSNotifier publishes notifications to JetStream
type NATSNotifier struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNATSNotifier creates the notification stream if needed and returns a notifier
func NewNATSNotifier(js nats.JetStreamContext, logger *zap.Logger) (*NATSNotifier, error) {
	n := &NATSNotifier{
		js:     js,
		logger: logger.Named("notifier"),
	}
	if err := n.setup(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *NATSNotifier) setup() error {
	info, err := n.js.StreamInfo(NotificationStream)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if info != nil {
		return nil
	}

	_, err = n.js.AddStream(&nats.StreamConfig{
		Name:      NotificationStream,
		Subjects:  []string{notificationSubjects},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		MaxMsgs:   1000,
		Discard:   nats.DiscardOld,
		Storage:   nats.MemoryStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", NotificationStream, err)
	}
	n.logger.Info("Created stream", zap.String("name", NotificationStream))
	return nil
}

// Notify publishes the notification on notify.<level>
func (n *NATSNotifier) Notify(ctx context.Context, notification model.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := n.js.Publish(NotificationSubject(notification.Level), data, nats.Context(ctx)); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("notification_id", notification.ID),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification published",
		zap.String("notification_id", notification.ID),
		zap.String("level", string(notification.Level)))
	return nil
}

// Subscribe delivers new notifications to handler until ctx is done
func (n *NATSNotifier) Subscribe(ctx context.Context, handler func(model.Notification)) error {
	sub, err := n.js.Subscribe(notificationSubjects, func(msg *nats.Msg) {
		var notification model.Notification
		if err := json.Unmarshal(msg.Data, &notification); err != nil {
			n.logger.Error("Failed to unmarshal notification", zap.Error(err))
			return
		}

		handler(notification)
		_ = msg.Ack()
	}, nats.DeliverNew(), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by the logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

// Notify logs the notification at a level matching its severity
func (n *LogNotifier) Notify(ctx context.Context, notification model.Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", notification.ID),
		zap.String("level", string(notification.Level)),
	}
	switch notification.Level {
	case model.NotificationError:
		n.logger.Error(notification.Message, fields...)
	case model.NotificationWarning:
		n.logger.Warn(notification.Message, fields...)
	default:
		n.logger.Info(notification.Message, fields...)
	}
	return nil
}
