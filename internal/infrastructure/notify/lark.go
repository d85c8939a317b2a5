package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
)

// LarkConfig holds the bot credentials and the chat that receives notifications
type LarkConfig struct {
	AppID         string
	AppSecret     string
	ReceiveIDType string // chat_id, open_id or email
	ReceiveID     string
}

// LarkMessage is one outgoing IM message
type LarkMessage struct {
	ReceiveIDType string
	ReceiveID     string
	MsgType       string
	Content       string
}

// LarkMessenger delivers a LarkMessage
type LarkMessenger interface {
	SendMessage(ctx context.Context, msg LarkMessage) error
}

// MessageCreator is the Lark IM call behind IMMessenger
type MessageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// IMMessenger sends messages through the Lark IM API
type IMMessenger struct {
	messages MessageCreator
}

// NewIMMessenger wraps an IM message service. Pass client.Im.Message.
func NewIMMessenger(messages MessageCreator) *IMMessenger {
	return &IMMessenger{messages: messages}
}

// SendMessage creates the message and maps a non-zero API code to an error
func (m *IMMessenger) SendMessage(ctx context.Context, msg LarkMessage) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(msg.ReceiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ReceiveID).
			MsgType(msg.MsgType).
			Content(msg.Content).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("failed to send message: empty response")
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// LarkSink posts notifications as text messages to a Lark chat
type LarkSink struct {
	messenger     LarkMessenger
	receiveIDType string
	receiveID     string
	logger        *zap.Logger
}

// NewLarkClient creates the Lark SDK client
func NewLarkClient(cfg LarkConfig) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
}

// NewLarkSink creates a sink that delivers through messenger
func NewLarkSink(messenger LarkMessenger, cfg LarkConfig, logger *zap.Logger) *LarkSink {
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = "chat_id"
	}
	return &LarkSink{
		messenger:     messenger,
		receiveIDType: idType,
		receiveID:     cfg.ReceiveID,
		logger:        logger,
	}
}

func (s *LarkSink) Name() string { return "lark" }

// Send posts n to the configured chat
func (s *LarkSink) Send(ctx context.Context, n port.Notification) error {
	if s.receiveID == "" {
		return fmt.Errorf("lark receive id is not configured")
	}

	content, err := json.Marshal(map[string]string{"text": formatText(n)})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	err = s.messenger.SendMessage(ctx, LarkMessage{
		ReceiveIDType: s.receiveIDType,
		ReceiveID:     s.receiveID,
		MsgType:       "text",
		Content:       string(content),
	})
	if err != nil {
		s.logger.Error("Lark delivery failed",
			zap.String("receive_id", s.receiveID),
			zap.Error(err))
		return err
	}
	return nil
}

func formatText(n port.Notification) string {
	var b strings.Builder
	switch n.Level {
	case port.LevelError:
		b.WriteString("[ERROR] ")
	case port.LevelWarning:
		b.WriteString("[WARN] ")
	}
	b.WriteString(n.Title)
	if n.ClientID != "" {
		fmt.Fprintf(&b, " (%s)", n.ClientID)
	}
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(n.Message)
	}
	return b.String()
}
