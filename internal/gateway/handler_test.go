package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Edgewaretech/edgeware-bluegate/internal/broker"
	"github.com/Edgewaretech/edgeware-bluegate/internal/request"
	"github.com/Edgewaretech/edgeware-bluegate/internal/testutils"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, spec *request.Spec) (*request.Result, error) {
	args := m.Called(ctx, spec)
	res, _ := args.Get(0).(*request.Result)
	return res, args.Error(1)
}

type MockReplier struct {
	mock.Mock
}

func (m *MockReplier) Reply(ctx context.Context, msg *broker.Message, payload []byte) error {
	args := m.Called(ctx, msg, payload)
	return args.Error(0)
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newTestHandler(sub Submitter, rep Replier) *Handler {
	h := NewHandler(sub, rep, testutils.NewSilentLogger())
	h.now = func() time.Time { return fixedNow }
	return h
}

const validRequest = `{"address":"AA:BB:CC:DD:EE:FF","writeCharHandle":"002a","writeData":"48656c6c6f","notifyCharHandle":"002c"}`

func TestHandler_Process(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		result    *request.Result
		err       error
		submitted bool
		expected  string
	}{
		{
			name:      "notifications are returned",
			payload:   validRequest,
			result:    request.WithNotifications([]string{"0102", "0304"}),
			submitted: true,
			expected:  `{"timestamp":1700000000000,"statusCode":200,"result":{"notifications":["0102","0304"]}}`,
		},
		{
			name:      "write-only success has no result",
			payload:   `{"address":"aabbccddeeff","writeCharHandle":"002a","writeData":"00"}`,
			result:    request.Success(),
			submitted: true,
			expected:  `{"timestamp":1700000000000,"statusCode":200}`,
		},
		{
			name:     "malformed json is a bad request",
			payload:  `{"address":`,
			expected: `{"timestamp":1700000000000,"statusCode":400,"reason":"Bad request"}`,
		},
		{
			name:     "invalid handle is a bad request",
			payload:  `{"address":"AA:BB:CC:DD:EE:FF","writeCharHandle":"zz","writeData":"00"}`,
			expected: `{"timestamp":1700000000000,"statusCode":400,"reason":"Bad request"}`,
		},
		{
			name:     "expired request is rejected before the radio",
			payload:  `{"address":"AA:BB:CC:DD:EE:FF","writeCharHandle":"002a","writeData":"00","timestamp":1699999990000,"expiryIntervalMs":5000}`,
			expected: `{"timestamp":1700000000000,"statusCode":400,"reason":"Request expired"}`,
		},
		{
			name:      "busy radio",
			payload:   validRequest,
			err:       request.ErrBusy,
			submitted: true,
			expected:  `{"timestamp":1700000000000,"statusCode":500,"reason":"Another request in progress"}`,
		},
		{
			name:      "abandoned wait reports shutdown",
			payload:   validRequest,
			err:       context.Canceled,
			submitted: true,
			expected:  `{"timestamp":1700000000000,"statusCode":503,"reason":"Gateway shutting down"}`,
		},
		{
			name:      "unexpected error becomes a generic failure",
			payload:   validRequest,
			err:       errors.New("radio on fire"),
			submitted: true,
			expected:  `{"timestamp":1700000000000,"statusCode":500,"reason":"radio on fire"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &MockSubmitter{}
			if tt.submitted {
				sub.On("Submit", mock.Anything, mock.AnythingOfType("*request.Spec")).Return(tt.result, tt.err).Once()
			}
			h := newTestHandler(sub, &MockReplier{})

			resp := h.Process(context.Background(), []byte(tt.payload))

			testutils.NewJSONAsserter(t).Assert(testutils.MustJSON(resp), tt.expected)
			sub.AssertExpectations(t)
			if !tt.submitted {
				sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHandler_PassesParsedSpec(t *testing.T) {
	sub := &MockSubmitter{}
	sub.On("Submit", mock.Anything, mock.MatchedBy(func(spec *request.Spec) bool {
		return spec.Address == "AA:BB:CC:DD:EE:FF" && spec.TransferUnit == 64 && spec.ConnectTimeoutMs == 2000
	})).Return(request.Success(), nil).Once()
	h := newTestHandler(sub, &MockReplier{})

	resp := h.Process(context.Background(), []byte(`{"address":"AA:BB:CC:DD:EE:FF","writeCharHandle":"002a","writeData":"00","mtu":64,"waitConnectMs":2000}`))

	assert.Equal(t, 200, resp.StatusCode)
	sub.AssertExpectations(t)
}

func TestHandler_Handle_RepliesOnce(t *testing.T) {
	sub := &MockSubmitter{}
	sub.On("Submit", mock.Anything, mock.Anything).Return(request.Success(), nil).Once()

	msg := &broker.Message{
		Topic:           "ble/requests",
		Payload:         []byte(validRequest),
		ResponseTopic:   "client/7/replies",
		CorrelationData: []byte("req-7"),
	}
	rep := &MockReplier{}
	rep.On("Reply", mock.Anything, msg, mock.Anything).Return(nil).Once()

	newTestHandler(sub, rep).Handle(context.Background(), msg)

	rep.AssertExpectations(t)
	payload, ok := rep.Calls[0].Arguments.Get(2).([]byte)
	require.True(t, ok)
	var resp request.Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandler_Handle_RepliesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := &MockSubmitter{}
	sub.On("Submit", mock.Anything, mock.Anything).Return(nil, request.ErrShuttingDown).Once()
	rep := &MockReplier{}
	rep.On("Reply", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything, mock.Anything).Return(nil).Once()

	newTestHandler(sub, rep).Handle(ctx, &broker.Message{Payload: []byte(validRequest)})

	rep.AssertExpectations(t)
}

func TestHandler_Handle_ReplyFailureIsLogged(t *testing.T) {
	rep := &MockReplier{}
	rep.On("Reply", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker gone")).Once()

	assert.NotPanics(t, func() {
		newTestHandler(&MockSubmitter{}, rep).Handle(context.Background(), &broker.Message{Payload: []byte("nope")})
	})
	rep.AssertExpectations(t)
}
