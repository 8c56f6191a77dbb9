package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/cuemby/dc1agent/pkg/mc"
)

// chatTransport delivers alerts to a Slack channel — the Go-idiomatic
// analog of the original system's Telegram chat transport. dm and group
// transports share this implementation with different target channels.
type chatTransport struct {
	name    string
	client  *slack.Client
	channel string
}

// NewChatDMTransport constructs the direct-message chat transport.
func NewChatDMTransport(botToken, dmChannel string) Transport {
	return &chatTransport{name: "chat_dm", client: slack.New(botToken), channel: dmChannel}
}

// NewChatGroupTransport constructs the group-channel chat transport.
func NewChatGroupTransport(botToken, groupChannel string) Transport {
	return &chatTransport{name: "chat_group", client: slack.New(botToken), channel: groupChannel}
}

func (t *chatTransport) Name() string { return t.name }

func (t *chatTransport) Send(ctx context.Context, a Alert) error {
	text := fmt.Sprintf("[%s] %s: %s (source: %s)", a.Severity, a.Title, a.Message, a.SourceAgent)
	_, _, err := t.client.PostMessageContext(ctx, t.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

// mcTransport forwards alerts to Mission Control's audit endpoint.
type mcTransport struct {
	client *mc.Client
}

// NewMCTransport constructs the Mission Control alert transport.
func NewMCTransport(client *mc.Client) Transport {
	return &mcTransport{client: client}
}

func (t *mcTransport) Name() string { return "mc" }

func (t *mcTransport) Send(ctx context.Context, a Alert) error {
	return t.client.Audit(ctx, "alert."+string(a.Severity), a.Title+": "+a.Message, map[string]string{
		"source_agent": a.SourceAgent,
	})
}

// operatorMailTransport sends CRITICAL alerts to the operator mailer
// external collaborator named in spec.md §1. The mailer itself is an
// out-of-scope collaborator; this transport only shapes the call.
type operatorMailTransport struct {
	send func(ctx context.Context, to, subject, body string) error
	to   string
}

// NewOperatorMailTransport constructs the operator-mailer transport
// around a caller-supplied send function (the mailer SDK/client is an
// external collaborator, not implemented in this module).
func NewOperatorMailTransport(to string, send func(ctx context.Context, to, subject, body string) error) Transport {
	return &operatorMailTransport{send: send, to: to}
}

func (t *operatorMailTransport) Name() string { return "operator_mail" }

func (t *operatorMailTransport) Send(ctx context.Context, a Alert) error {
	subject := fmt.Sprintf("[%s] %s", a.Severity, a.Title)
	return t.send(ctx, t.to, subject, a.Message)
}
