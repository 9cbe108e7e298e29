package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	got []Envelope
	err error
}

func (s *recordingSink) Publish(ctx context.Context, msg Envelope) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	s.got = append(s.got, msg)
	return s.err
}

func TestNew(t *testing.T) {
	env := New(TypeMessageStatus, "t1", "req-1", MessageStatusV1{MessageID: "wamid.1", Status: "read"})

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, TypeMessageStatus, env.Meta.Type)
	assert.Equal(t, "t1", env.Meta.TenantID)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "req-1", *env.Meta.CorrelationID)

	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"message.status.v1"`)
	assert.Contains(t, string(body), `"message_id":"wamid.1"`)

	noCorrelation := New(TypeFlowFinished, "t1", "", nil)
	assert.Nil(t, noCorrelation.Meta.CorrelationID)
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	fanout := NewFanout(zaptest.NewLogger(t), time.Second, failing, ok)

	err := fanout.Publish(context.Background(), New(TypeFlowFinished, "t1", "", FlowFinishedV1{FlowID: "f1"}))

	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Envelope{}))
}

func TestRabbitPublisher_Integration(t *testing.T) {
	url := os.Getenv("RABBITMQ_TEST_URL")
	if url == "" {
		t.Skip("RABBITMQ_TEST_URL not set")
	}

	pub, err := NewRabbitPublisher(url, "whatsapp.events.test", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, pub.Publish(ctx, New(TypeTemplateStatus, "t1", "", TemplateStatusV1{Name: "welcome", Status: "approved"})))
}
