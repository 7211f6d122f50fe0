package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

const DefaultQueueGroup = "query-workers"

// QueryHandler answers one query and returns the display payload for the requester.
type QueryHandler func(ctx context.Context, query string) (*domain.DisplayPayload, error)

// Responder serves query requests published on a subject, one reply per request.
type Responder struct {
	conn           *nats.Conn
	subject        string
	queueGroup     string
	handlerTimeout time.Duration
	logger         *slog.Logger
}

type ResponderConfig struct {
	Subject        string
	QueueGroup     string
	HandlerTimeout time.Duration
}

func NewResponder(url string, cfg ResponderConfig, options Options) (*Responder, error) {
	options = options.normalize()
	conn, err := connect(url, options)
	if err != nil {
		return nil, err
	}
	return newResponder(conn, cfg, options.Logger), nil
}

func newResponder(conn *nats.Conn, cfg ResponderConfig, logger *slog.Logger) *Responder {
	group := strings.TrimSpace(cfg.QueueGroup)
	if group == "" {
		group = DefaultQueueGroup
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		conn:           conn,
		subject:        cfg.Subject,
		queueGroup:     group,
		handlerTimeout: cfg.HandlerTimeout,
		logger:         logger,
	}
}

func (r *Responder) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

// Serve blocks until ctx is done, then drains the subscription.
func (r *Responder) Serve(ctx context.Context, handler QueryHandler) error {
	sub, err := r.conn.QueueSubscribe(r.subject, r.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		reply := r.handle(ctx, msg.Data, handler)
		if msg.Reply == "" {
			r.logger.Warn("nats_request_without_reply", "subject", msg.Subject)
			return
		}
		if err := msg.Respond(reply); err != nil {
			r.logger.Error("nats_respond_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := r.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := r.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (r *Responder) handle(ctx context.Context, data []byte, handler QueryHandler) []byte {
	reply := QueryReply{}
	req, err := decodeRequest(data)
	if err == nil && strings.TrimSpace(req.Query) == "" {
		err = domain.WrapError(domain.ErrInvalidInput, "decode query request", fmt.Errorf("query is required"))
	}
	reply.RequestID = req.RequestID

	if err == nil {
		handlerCtx := ctx
		if r.handlerTimeout > 0 {
			var cancel context.CancelFunc
			handlerCtx, cancel = context.WithTimeout(ctx, r.handlerTimeout)
			defer cancel()
		}
		var payload *domain.DisplayPayload
		payload, err = handler(handlerCtx, req.Query)
		reply.Payload = payload
	}
	if err != nil {
		r.logger.WarnContext(ctx, "nats_query_failed", "request_id", req.RequestID, "error", err)
		reply.Payload = nil
		reply.Error = replyErrorFor(err)
	}

	body, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		body, _ = json.Marshal(QueryReply{
			RequestID: req.RequestID,
			Error:     &ReplyError{Kind: kindInternal, Message: marshalErr.Error()},
		})
	}
	return body
}
