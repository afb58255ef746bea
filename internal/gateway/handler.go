package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/broker"
	"github.com/Edgewaretech/edgeware-bluegate/internal/request"
)

const replyTimeout = 5 * time.Second

// Submitter runs one admitted BLE operation.
type Submitter interface {
	Submit(ctx context.Context, spec *request.Spec) (*request.Result, error)
}

// Replier publishes the response to a request.
type Replier interface {
	Reply(ctx context.Context, msg *broker.Message, payload []byte) error
}

// Handler turns broker messages into BLE operations and replies with their
// outcome. Exactly one reply is sent per message.
type Handler struct {
	submitter Submitter
	replier   Replier
	logger    *logrus.Logger
	now       func() time.Time
}

// NewHandler creates a handler.
func NewHandler(submitter Submitter, replier Replier, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{submitter: submitter, replier: replier, logger: logger, now: time.Now}
}

// Handle processes msg and publishes the reply.
func (h *Handler) Handle(ctx context.Context, msg *broker.Message) {
	resp := h.Process(ctx, msg.Payload)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		return
	}

	// the reply must go out even when the request was cut short by shutdown
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()

	entry := h.logger.WithFields(logrus.Fields{
		"topic":       msg.ResponseTopic,
		"status_code": resp.StatusCode,
	})
	if err := h.replier.Reply(replyCtx, msg, payload); err != nil {
		entry.WithError(err).Warn("Failed to publish response")
		return
	}
	entry.Debug("Response published")
}

// Process parses, validates and runs one request payload.
func (h *Handler) Process(ctx context.Context, payload []byte) *request.Response {
	res, err := h.run(ctx, payload)
	return request.NewResponse(res, err, h.now())
}

func (h *Handler) run(ctx context.Context, payload []byte) (*request.Result, error) {
	spec, err := request.Parse(payload)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected malformed request")
		return nil, request.ErrBadRequest
	}
	if err := spec.Validate(); err != nil {
		h.logger.WithError(err).WithField("address", spec.Address).Warn("Rejected invalid request")
		return nil, err
	}
	if spec.IsExpired(h.now()) {
		h.logger.WithFields(logrus.Fields{
			"address":   spec.Address,
			"timestamp": spec.Timestamp,
			"expiry_ms": spec.ExpiryIntervalMs,
		}).Warn("Rejected expired request")
		return nil, request.ErrExpired
	}

	res, err := h.submitter.Submit(ctx, spec)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, request.ErrShuttingDown
	}
	return res, err
}
