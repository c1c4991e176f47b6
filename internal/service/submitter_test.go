package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/queue"
)

func TestSyncSubmitter(t *testing.T) {
	req := &model.OrderCreateRequest{OrderNumber: 42}
	tests := map[string]struct {
		client  fakeOrderClient
		want    string
		wantErr error
	}{
		"accepted":            {client: fakeOrderClient{res: model.OrderResult{OrderNumber: "ORD-42"}}, want: "ORD-42"},
		"accepted, no number": {client: fakeOrderClient{}, want: "42"},
		"rejected":            {client: fakeOrderClient{res: model.OrderResult{Code: 500, Message: "db down"}}, wantErr: errno.ErrDownstreamSubmissionFailure},
		"transport failure":   {client: fakeOrderClient{err: errBoom}, wantErr: errno.ErrDownstreamSubmissionFailure},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := NewSyncSubmitter(tc.client).Submit(context.Background(), req)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAsyncSubmitter(t *testing.T) {
	req := &model.OrderCreateRequest{OrderNumber: 42}
	tests := map[string]struct {
		pub     *fakePublisher
		wait    time.Duration
		wantErr error
	}{
		"acknowledged": {
			pub: &fakePublisher{respond: func(ok func(queue.Ack), _ func(error)) { ok(queue.Ack{Topic: "order.create"}) }},
		},
		"rejected": {
			pub:     &fakePublisher{respond: func(_ func(queue.Ack), fail func(error)) { fail(errBoom) }},
			wantErr: errno.ErrDownstreamSubmissionFailure,
		},
		"publish refused": {
			pub:     &fakePublisher{err: errBoom},
			wantErr: errno.ErrDownstreamSubmissionFailure,
		},
		"no verdict within wait": {
			pub:     &fakePublisher{},
			wait:    20 * time.Millisecond,
			wantErr: errno.ErrInterruptedWait,
		},
		"first verdict wins": {
			pub: &fakePublisher{respond: func(ok func(queue.Ack), fail func(error)) {
				ok(queue.Ack{})
				fail(errBoom)
				ok(queue.Ack{})
			}},
		},
		"late ack after wait": {
			pub: &fakePublisher{respond: func(ok func(queue.Ack), _ func(error)) {
				time.Sleep(50 * time.Millisecond)
				ok(queue.Ack{})
			}},
			wait:    10 * time.Millisecond,
			wantErr: errno.ErrInterruptedWait,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := NewAsyncSubmitter(tc.pub, tc.wait).Submit(context.Background(), req)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "42", got)
		})
	}
}

func TestAsyncSubmitterStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewAsyncSubmitter(&fakePublisher{}, 0).Submit(ctx, &model.OrderCreateRequest{OrderNumber: 1})
	assert.ErrorIs(t, err, errno.ErrInterruptedWait)
	assert.ErrorIs(t, err, context.Canceled)
}
