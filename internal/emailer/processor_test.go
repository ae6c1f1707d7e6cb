package emailer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	"namereg/internal/platform/logger"
	"namereg/internal/queue"
)

type captureDeliverer struct {
	sent []*Message
}

func (d *captureDeliverer) Deliver(_ context.Context, msg *Message) error {
	d.sent = append(d.sent, msg)
	return nil
}

type processorSource struct{ st store.RequestStore }

func (s processorSource) Get(ctx context.Context, nrNum string) (*nrmodels.Request, error) {
	return s.st.GetByNRNum(ctx, nrNum)
}

func newTestProcessor(t *testing.T, st store.RequestStore) (*Processor, *captureDeliverer) {
	t.Helper()
	r, err := NewRenderer(testEmailerConfig())
	require.NoError(t, err)
	d := &captureDeliverer{}
	return NewProcessor(processorSource{st}, r, d, logger.New()), d
}

func TestProcessDeliversToApplicant(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Create(context.Background(), approvedRequest())
	require.NoError(t, err)

	p, d := newTestProcessor(t, st)
	require.NoError(t, p.Process(context.Background(), "NR 1234567", queue.OptionApproved))

	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"chen@example.com"}, d.sent[0].To)
	assert.Contains(t, d.sent[0].Subject, "NR 1234567")
}

func TestProcessSkipsOptOut(t *testing.T) {
	st := store.NewMemory()
	req := approvedRequest()
	req.Applicant.DeclineNotify = true
	_, err := st.Create(context.Background(), req)
	require.NoError(t, err)

	p, d := newTestProcessor(t, st)
	require.NoError(t, p.Process(context.Background(), "NR 1234567", queue.OptionApproved))
	assert.Empty(t, d.sent)
}

func TestProcessSkipsMissingRecipient(t *testing.T) {
	st := store.NewMemory()
	req := approvedRequest()
	req.Applicant = nil
	_, err := st.Create(context.Background(), req)
	require.NoError(t, err)

	p, d := newTestProcessor(t, st)
	require.NoError(t, p.Process(context.Background(), "NR 1234567", queue.OptionApproved))
	assert.Empty(t, d.sent)
}

func TestProcessUnknownRequestFails(t *testing.T) {
	p, _ := newTestProcessor(t, store.NewMemory())
	err := p.Process(context.Background(), "NR 0000000", queue.OptionApproved)
	require.Error(t, err)
}

type recordingSender struct {
	calls []string
	fail  int
}

func (s *recordingSender) Process(_ context.Context, nrNum, option string) error {
	s.calls = append(s.calls, nrNum+"|"+option)
	if s.fail > 0 {
		s.fail--
		return fmt.Errorf("delivery unavailable")
	}
	return nil
}

// fakeDedupe covers the two commands the worker issues.
type fakeDedupe struct {
	redis.Cmdable
	keys map[string]struct{}
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{keys: make(map[string]struct{})}
}

func (f *fakeDedupe) SetNX(ctx context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, dup := f.keys[key]; dup {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = struct{}{}
	cmd.SetVal(true)
	return cmd
}

func (f *fakeDedupe) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func TestWorkerWithoutDedupeSends(t *testing.T) {
	sender := &recordingSender{}
	w := NewWorker(sender, nil, 0, nil, logger.New())

	value, _ := json.Marshal(queue.EmailNotification{NRNum: "NR 1234567", Option: queue.OptionApproved})
	require.NoError(t, w.Handle(context.Background(), []byte("NR 1234567"), value))
	require.NoError(t, w.Handle(context.Background(), []byte("NR 1234567"), value))

	// No dedupe cache, so both deliveries go through.
	assert.Len(t, sender.calls, 2)
}

func TestWorkerDedupeDropsDuplicate(t *testing.T) {
	sender := &recordingSender{}
	w := NewWorker(sender, newFakeDedupe(), time.Hour, nil, logger.New())

	value, _ := json.Marshal(queue.EmailNotification{NRNum: "NR 1234567", Option: queue.OptionApproved})
	require.NoError(t, w.Handle(context.Background(), []byte("NR 1234567"), value))
	require.NoError(t, w.Handle(context.Background(), []byte("NR 1234567"), value))

	assert.Len(t, sender.calls, 1)
}

func TestWorkerReleasesClaimOnSendFailure(t *testing.T) {
	sender := &recordingSender{fail: 1}
	w := NewWorker(sender, newFakeDedupe(), time.Hour, nil, logger.New())

	value, _ := json.Marshal(queue.EmailNotification{NRNum: "NR 1234567", Option: queue.OptionApproved})
	require.Error(t, w.Handle(context.Background(), []byte("NR 1234567"), value))

	// The redelivery must not be dropped as a duplicate of the failed send.
	require.NoError(t, w.Handle(context.Background(), []byte("NR 1234567"), value))
	assert.Len(t, sender.calls, 2)
}

func TestWorkerRejectsMalformedMessage(t *testing.T) {
	w := NewWorker(&recordingSender{}, nil, 0, nil, logger.New())
	require.Error(t, w.Handle(context.Background(), nil, []byte("{not json")))
}
