package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
)

// Requester sends queries to a Responder over NATS request/reply.
type Requester struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func NewRequester(url, subject string, options Options) (*Requester, error) {
	options = options.normalize()
	conn, err := connect(url, options)
	if err != nil {
		return nil, err
	}
	return &Requester{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (r *Requester) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

// Ask publishes the query and waits for the reply until ctx is done.
func (r *Requester) Ask(ctx context.Context, query string) (*domain.DisplayPayload, error) {
	body, err := json.Marshal(QueryRequest{RequestID: uuid.NewString(), Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	msg, err := resilience.Call(ctx, r.executor, "nats.request", func(ctx context.Context) (*nats.Msg, error) {
		reply, err := r.conn.RequestWithContext(ctx, r.subject, body)
		if err != nil {
			return nil, fmt.Errorf("nats request: %w", err)
		}
		return reply, nil
	}, classifyNATSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats request", err)
	}
	return decodeReply(msg.Data)
}

func decodeReply(data []byte) (*domain.DisplayPayload, error) {
	var reply QueryReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decode query reply: %w", err)
	}
	if reply.Error != nil {
		return nil, reply.Error.Err()
	}
	if reply.Payload == nil {
		return nil, fmt.Errorf("decode query reply: empty payload")
	}
	return reply.Payload, nil
}
