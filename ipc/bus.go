// Package ipc implements the shared-memory-pub/sub boundary of §4.4
// between the scheduler and out-of-process worker nodes: two services per
// out-of-process node instance, named deterministically from
// (session_id, node_id), carrying wire.Message records framed per §4.4's
// byte layout.
//
// The bus is backed by Redis pub/sub (github.com/redis/go-redis/v9), which
// gives the transport's required semantics for free: a publish with no
// active subscriber is simply not delivered, matching "the bus's history
// depth is 0" — there is no queue to replay from. Tests run it against
// github.com/alicebob/miniredis/v2 rather than a live Redis instance.
package ipc

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mediarun/runtime/wire"
)

const channelPrefix = "mediarun:ipc"

// Direction distinguishes the two services created per out-of-process node
// (§4.4): one carrying chunks into the worker, one carrying results back.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ServiceName derives the deterministic pub/sub channel for one direction
// of one node instance's traffic, bound to session_id so that collisions
// between sessions are impossible (§4.4, "Lifecycle").
func ServiceName(sessionID, nodeID string, dir Direction) string {
	return fmt.Sprintf("%s:%s:%s:%s", channelPrefix, sessionID, nodeID, dir)
}

// Bus is the pub/sub transport shared by every session on a host. It holds
// no message history of its own; all buffering is left to Redis pub/sub's
// own at-most-once delivery.
type Bus struct {
	client redis.UniversalClient
}

// NewBus wraps an already-constructed Redis client. Passing a
// *redis.Client pointed at a miniredis instance is the standard way to
// exercise this package in tests without a live Redis server.
func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

// Publish encodes msg per the wire codec and publishes it on channel. If no
// Service is currently subscribed, the message is dropped — callers must
// not treat a nil error as delivery confirmation.
func (b *Bus) Publish(ctx context.Context, channel string, msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("ipc: encode for %q: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("ipc: publish to %q: %w", channel, err)
	}
	return nil
}

// Subscribe starts a Service receiving on channel. The subscription is
// confirmed with Redis before Subscribe returns, so a Publish issued
// immediately afterward is guaranteed to be seen — callers must still
// start the subscriber before the first publish, per §4.4's compensation
// rule; Subscribe returning is the signal that it is safe to do so.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*Service, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("ipc: subscribe to %q: %w", channel, err)
	}

	svcCtx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		channel: channel,
		sub:     sub,
		out:     make(chan wire.Message, 32),
		errs:    make(chan error, 1),
		cancel:  cancel,
	}
	go svc.pump(svcCtx)
	return svc, nil
}

// Service is the receive side of one direction of one node instance's
// traffic. Messages arrive in publish order (§4.4, "Ordering"); a Service
// never reorders or drops what it has already received.
type Service struct {
	channel string
	sub     *redis.PubSub
	out     chan wire.Message
	errs    chan error
	cancel  context.CancelFunc
}

func (s *Service) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, err := wire.Decode([]byte(m.Payload))
			if err != nil {
				select {
				case s.errs <- fmt.Errorf("ipc: decode on %q: %w", s.channel, err):
				default:
				}
				continue
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Messages returns the decoded, in-order message stream. It is closed once
// Close is called or the underlying subscription ends.
func (s *Service) Messages() <-chan wire.Message { return s.out }

// Errors surfaces frame-decode failures observed on this service. The
// scheduler does not read this channel.
func (s *Service) Errors() <-chan error { return s.errs }

// Close tears down the subscription. Safe to call more than once.
func (s *Service) Close() error {
	s.cancel()
	return s.sub.Close()
}
