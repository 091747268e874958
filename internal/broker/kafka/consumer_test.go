package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/DelayBoard/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_CallsHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch message")
	require.Equal(t, []byte("k"), gotK)
	require.Equal(t, []byte("v"), gotV)
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_HandlerErrorStopsWithoutCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(k, v []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Contains(t, err.Error(), "handle message")
	require.Empty(t, fr.committed)
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}

type overdueHandlerMock struct {
	mock.Mock
}

func (m *overdueHandlerMock) OrderOverdue(ctx context.Context, msg messages.OrderOverdue) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *overdueHandlerMock) SnapshotReady(ctx context.Context, msg messages.SnapshotReady) error {
	return m.Called(ctx, msg).Error(0)
}

func encode(t *testing.T, v any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

var takenAt = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func orderWithID(id string) any {
	return mock.MatchedBy(func(m messages.OrderOverdue) bool {
		return m.InternalID == id && m.AccountID == "acc" && m.DetectedAt.Equal(takenAt)
	})
}

func TestConsumeOverdue_DispatchesByKind(t *testing.T) {
	order := messages.OrderOverdue{Kind: messages.KindOrderOverdue, SnapshotID: "s1", AccountID: "acc", InternalID: "1_A", DetectedAt: takenAt}
	legacy := messages.OrderOverdue{SnapshotID: "s1", AccountID: "acc", InternalID: "2_B", DetectedAt: takenAt}
	ready := messages.SnapshotReady{Kind: messages.KindSnapshotReady, SnapshotID: "s1", AccountID: "acc", TakenAt: takenAt, Overdue: 2}

	fr := &fakeReader{msgs: []kafka.Message{encode(t, order), encode(t, legacy), encode(t, ready)}, err: errors.New("stop")}
	c := newConsumerWithReader(fr)

	h := &overdueHandlerMock{}
	h.On("OrderOverdue", mock.Anything, orderWithID("1_A")).Return(nil).Once()
	h.On("OrderOverdue", mock.Anything, orderWithID("2_B")).Return(nil).Once()
	h.On("SnapshotReady", mock.Anything, mock.MatchedBy(func(m messages.SnapshotReady) bool {
		return m.SnapshotID == "s1" && m.Overdue == 2 && m.TakenAt.Equal(takenAt)
	})).Return(nil).Once()

	err := c.ConsumeOverdue(context.Background(), h)
	require.ErrorContains(t, err, "stop")
	h.AssertExpectations(t)
	require.Len(t, fr.committed, 3)
	require.Equal(t, int64(0), c.Skipped())
}

func TestConsumeOverdue_SkipsAndCommitsBadMessages(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{
		{Value: []byte("{not json")},
		encode(t, map[string]any{"kind": "order_cancelled", "account_id": "acc"}),
		encode(t, messages.OrderOverdue{InternalID: "1_A"}),
		encode(t, messages.SnapshotReady{Kind: messages.KindSnapshotReady, AccountID: "acc"}),
		encode(t, map[string]any{"kind": messages.KindSnapshotReady, "overdue": "many"}),
	}, err: errors.New("stop")}
	c := newConsumerWithReader(fr)

	h := &overdueHandlerMock{}
	err := c.ConsumeOverdue(context.Background(), h)
	require.ErrorContains(t, err, "stop")
	h.AssertNotCalled(t, "OrderOverdue", mock.Anything, mock.Anything)
	h.AssertNotCalled(t, "SnapshotReady", mock.Anything, mock.Anything)
	require.Len(t, fr.committed, 5)
	require.Equal(t, int64(5), c.Skipped())
}

func TestConsumeOverdue_HandlerErrorLeavesMessageUncommitted(t *testing.T) {
	ready := messages.SnapshotReady{Kind: messages.KindSnapshotReady, SnapshotID: "s1", AccountID: "acc", TakenAt: takenAt}
	fr := &fakeReader{msgs: []kafka.Message{encode(t, ready)}}
	c := newConsumerWithReader(fr)

	want := errors.New("digest full")
	h := &overdueHandlerMock{}
	h.On("SnapshotReady", mock.Anything, mock.Anything).Return(want).Once()

	err := c.ConsumeOverdue(context.Background(), h)
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
	require.Equal(t, int64(0), c.Skipped())
}
