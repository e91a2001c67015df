package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var ErrSenderDisabled = errors.New("push transport not configured")

// Message is a single push addressed to one device token
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers one push message and returns the transport's message id
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NoopSender is used when no push credentials are configured
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, msg Message) (string, error) {
	return "", ErrSenderDisabled
}

// FCMSender delivers through Firebase Cloud Messaging
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender creates a sender from a service account, given either as
// inline JSON or as a path to the JSON file.
func NewFCMSender(ctx context.Context, credentials string) (*FCMSender, error) {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return nil, ErrSenderDisabled
	}

	var opt option.ClientOption
	if strings.HasPrefix(credentials, "{") {
		opt = option.WithCredentialsJSON([]byte(credentials))
	} else {
		if _, err := os.Stat(credentials); err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		opt = option.WithCredentialsFile(credentials)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	slog.Info("Firebase messaging initialized")

	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, msg Message) (string, error) {
	return s.client.Send(ctx, &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: "default"},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	})
}
