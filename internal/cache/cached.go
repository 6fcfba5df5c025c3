package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// Codec converts cached values to and from bytes.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

type protoCodec[T proto.Message] struct {
	newMsg func() T
}

// ProtoCodec returns a Codec for protobuf messages; newMsg allocates an
// empty message to unmarshal into.
func ProtoCodec[T proto.Message](newMsg func() T) Codec[T] {
	return protoCodec[T]{newMsg: newMsg}
}

func (c protoCodec[T]) Marshal(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c protoCodec[T]) Unmarshal(data []byte) (T, error) {
	msg := c.newMsg()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero T
		return zero, err
	}
	return msg, nil
}

type jsonCodec[T any] struct{}

// JSONCodec returns a Codec that encodes values as JSON.
func JSONCodec[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Marshal(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Handler is the shape of a unary servicer method body.
type Handler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// OriginTimeout bounds an origin call shared by concurrent misses. The
// shared call does not inherit any single caller's cancellation.
const OriginTimeout = 30 * time.Second

// originPanic carries a panic out of a shared origin call so every
// waiting caller re-raises it on its own goroutine.
type originPanic struct {
	value any
}

func (p originPanic) Error() string { return fmt.Sprintf("cached origin panicked: %v", p.value) }

// Cached wraps fn so its responses are served from c.
//
// On each call the key is derived with MakeCacheKey(method, req). A hit is
// decoded and returned without calling fn. On a miss fn runs, and a
// successful response is stored with SetWithL1 before being returned.
// Errors from fn are returned as is and never cached. Any cache-side
// failure falls back to calling fn, so the wrapper is transparent to
// callers. A nil c returns fn unchanged.
//
// Concurrent misses for the same key share one call to fn. That call runs
// under the first caller's context values but neither its cancellation nor
// its deadline, bounded by OriginTimeout instead; each caller stops
// waiting when its own ctx is done.
func Cached[Req, Resp any](
	c *Tiered,
	method string,
	ttl time.Duration,
	codec Codec[Resp],
	fn Handler[Req, Resp],
) Handler[Req, Resp] {
	if c == nil {
		return fn
	}

	var group singleflight.Group

	return func(ctx context.Context, req Req) (Resp, error) {
		key, err := MakeCacheKey(method, req)
		if err != nil {
			c.logger.WithContext(ctx).Warn("cache key derivation failed",
				observability.String("method", method), observability.Error(err))
			return fn(ctx, req)
		}

		if data, err := c.GetWithL1(ctx, key); err == nil {
			if resp, err := codec.Unmarshal(data); err == nil {
				return resp, nil
			}
			c.logger.WithContext(ctx).Warn("cached value could not be decoded",
				observability.String("key", key))
		}

		ch := group.DoChan(key, func() (v any, err error) {
			octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), OriginTimeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					v, err = nil, originPanic{value: r}
				}
			}()

			resp, err := fn(octx, req)
			if err != nil {
				return resp, err
			}
			data, err := codec.Marshal(resp)
			if err != nil {
				c.logger.WithContext(octx).Warn("response could not be encoded for caching",
					observability.String("key", key), observability.Error(err))
				return resp, nil
			}
			c.SetWithL1(octx, key, data, ttl)
			return resp, nil
		})

		select {
		case res := <-ch:
			if p, ok := res.Err.(originPanic); ok {
				panic(p.value)
			}
			resp, _ := res.Val.(Resp)
			return resp, res.Err
		case <-ctx.Done():
			var zero Resp
			return zero, ctx.Err()
		}
	}
}
