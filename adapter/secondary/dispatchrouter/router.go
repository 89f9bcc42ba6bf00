// Package dispatchrouter routes a clearing dispatch or queued-message send
// to the HTTP or Kafka transport based on the destination's URL shape,
// generalizing the teacher's producerfactory.Factory (which picked between
// its two producers on destination.URL vs destination.Topic).
package dispatchrouter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Router implements secondary.ClearingAdapter and secondary.MessageSender,
// dispatching to kafka when the target has no "scheme://" prefix (a bare
// "host:port/topic" kafka address) and to http otherwise.
type Router struct {
	kafka  secondary.ClearingAdapter
	http   secondary.ClearingAdapter
	logger *zap.Logger
}

// kafkaSender narrows a transport to MessageSender so Router.Send can route
// queued messages the same way Dispatch routes clearing calls; both
// transports are asserted against it.
type kafkaSender interface {
	Send(ctx context.Context, msg domain.QueuedMessage) error
}

// NewRouter builds a dispatchrouter.Router. Both transports must also
// implement secondary.MessageSender for Send to work.
func NewRouter(kafka, http secondary.ClearingAdapter, logger *zap.Logger) *Router {
	return &Router{kafka: kafka, http: http, logger: logger.Named("dispatch-router")}
}

func isHTTP(url string) bool {
	return strings.Contains(url, "://")
}

// Dispatch implements secondary.ClearingAdapter.
func (r *Router) Dispatch(ctx context.Context, endpoint domain.Endpoint, payload []byte, headers map[string]string) (secondary.ClearingStatus, error) {
	if isHTTP(endpoint.URL) {
		r.logger.Debug("routing dispatch to http", zap.String("url", endpoint.URL))
		return r.http.Dispatch(ctx, endpoint, payload, headers)
	}
	r.logger.Debug("routing dispatch to kafka", zap.String("target", endpoint.URL))
	return r.kafka.Dispatch(ctx, endpoint, payload, headers)
}

// Send implements secondary.MessageSender by routing to whichever transport
// a queued message's preserved URL names.
func (r *Router) Send(ctx context.Context, msg domain.QueuedMessage) error {
	var sender kafkaSender
	var ok bool
	if isHTTP(msg.URL) {
		sender, ok = r.http.(kafkaSender)
	} else {
		sender, ok = r.kafka.(kafkaSender)
	}
	if !ok {
		return fmt.Errorf("transport for %q does not implement message sending", msg.URL)
	}
	return sender.Send(ctx, msg)
}

type closer interface {
	Close() error
}

// Close shuts down both transports.
func (r *Router) Close() error {
	var errs []error
	if c, ok := r.kafka.(closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing kafka transport: %w", err))
		}
	}
	if c, ok := r.http.(closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing http transport: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing dispatch router: %v", errs)
	}
	return nil
}
