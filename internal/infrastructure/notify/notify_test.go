package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
)

type recordingSink struct {
	name string
	err  error
	wait chan struct{}

	mu   sync.Mutex
	sent []port.Notification
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(ctx context.Context, n port.Notification) error {
	if s.wait != nil {
		select {
		case <-s.wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("down")}
	f := NewFanout([]Sink{a, b}, time.Second, zap.NewNop())

	f.Notify(context.Background(), port.Notification{Type: port.NotificationImportCompleted, Title: "done"})
	f.Close()

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, port.LevelInfo, a.sent[0].Level)
	assert.False(t, a.sent[0].CreatedAt.IsZero())
}

func TestFanout_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	slow := &recordingSink{name: "slow", wait: release}
	f := NewFanout([]Sink{slow}, time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		f.Notify(context.Background(), port.Notification{Type: port.NotificationRequestSent})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow sink")
	}

	close(release)
	f.Close()
	assert.Equal(t, 1, slow.count())
}

func TestFanout_SurvivesCanceledCaller(t *testing.T) {
	sink := &recordingSink{name: "a"}
	f := NewFanout([]Sink{sink}, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Notify(ctx, port.Notification{Type: port.NotificationLedgerDegraded})
	f.Close()

	assert.Equal(t, 1, sink.count())
}

func TestFanout_LogsSinkFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := NewFanout([]Sink{&recordingSink{name: "broken", err: errors.New("boom")}}, time.Second, zap.New(core))

	f.Notify(context.Background(), port.Notification{Type: port.NotificationRequestCreated})
	f.Close()

	entries := logs.FilterMessage("Notification sink failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["sink"])
}

func TestFanout_DropsAfterClose(t *testing.T) {
	sink := &recordingSink{name: "a"}
	f := NewFanout([]Sink{sink}, time.Second, zap.NewNop())
	f.Close()

	f.Notify(context.Background(), port.Notification{Type: port.NotificationRequestRemoved})
	assert.Equal(t, 0, sink.count())
}

func TestLogSink_UsesLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Send(context.Background(), port.Notification{Level: port.LevelWarning, Title: "degraded"}))
	require.NoError(t, sink.Send(context.Background(), port.Notification{Level: port.LevelError, Title: "unavailable"}))
	require.NoError(t, sink.Send(context.Background(), port.Notification{Title: "imported"}))

	all := logs.All()
	require.Len(t, all, 3)
	assert.Equal(t, zap.WarnLevel, all[0].Level)
	assert.Equal(t, zap.ErrorLevel, all[1].Level)
	assert.Equal(t, zap.InfoLevel, all[2].Level)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Send(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)

	n := port.Notification{Type: port.NotificationImportCompleted, Title: "Import", ClientID: "c1"}
	require.NoError(t, sink.Send(context.Background(), n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("c1"), msg.Key)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte(port.NotificationImportCompleted), msg.Headers[0].Value)

	var decoded port.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "Import", decoded.Title)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	sink := NewKafkaSink(&fakeWriter{err: errors.New("no brokers")})
	err := sink.Send(context.Background(), port.Notification{Type: port.NotificationImportCompleted})
	assert.ErrorContains(t, err, "no brokers")
}

type fakeMessenger struct {
	sent []LarkMessage
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, msg LarkMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeMessages struct {
	calls int
	resp  *larkim.CreateMessageResp
	err   error
}

func (f *fakeMessages) Create(_ context.Context, _ *larkim.CreateMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.calls++
	return f.resp, f.err
}

func TestLarkSink_Send(t *testing.T) {
	fake := &fakeMessenger{}
	sink := NewLarkSink(fake, LarkConfig{ReceiveID: "oc_123"}, zap.NewNop())

	err := sink.Send(context.Background(), port.Notification{
		Level:    port.LevelWarning,
		Title:    "Ledger degraded",
		Message:  "Serving last known entries",
		ClientID: "c1",
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	msg := fake.sent[0]
	assert.Equal(t, "chat_id", msg.ReceiveIDType)
	assert.Equal(t, "oc_123", msg.ReceiveID)
	assert.Equal(t, "text", msg.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.Content), &content))
	assert.Equal(t, "[WARN] Ledger degraded (c1)\nServing last known entries", content["text"])
}

func TestLarkSink_Failures(t *testing.T) {
	unconfigured := &fakeMessenger{}
	sink := NewLarkSink(unconfigured, LarkConfig{}, zap.NewNop())
	assert.Error(t, sink.Send(context.Background(), port.Notification{Title: "x"}))
	assert.Empty(t, unconfigured.sent)

	failing := &fakeMessenger{err: errors.New("timeout")}
	sink = NewLarkSink(failing, LarkConfig{ReceiveID: "oc_1", ReceiveIDType: "open_id"}, zap.NewNop())
	assert.ErrorContains(t, sink.Send(context.Background(), port.Notification{Title: "x"}), "timeout")
	require.Len(t, failing.sent, 1)
	assert.Equal(t, "open_id", failing.sent[0].ReceiveIDType)
}

func TestIMMessenger_SendMessage(t *testing.T) {
	msg := LarkMessage{ReceiveIDType: "chat_id", ReceiveID: "oc_1", MsgType: "text", Content: `{"text":"x"}`}
	ctx := context.Background()

	ok := &fakeMessages{resp: &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 0}}}
	require.NoError(t, NewIMMessenger(ok).SendMessage(ctx, msg))
	assert.Equal(t, 1, ok.calls)

	apiErr := &fakeMessages{resp: &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}}
	assert.ErrorContains(t, NewIMMessenger(apiErr).SendMessage(ctx, msg), "230002")

	callErr := &fakeMessages{err: errors.New("timeout")}
	assert.ErrorContains(t, NewIMMessenger(callErr).SendMessage(ctx, msg), "timeout")

	assert.Error(t, NewIMMessenger(&fakeMessages{}).SendMessage(ctx, msg))
}
