package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/domain"
)

var ErrUnknownEvent = errors.New("unknown event type")

type EventFunc func(domain.Event)

// Router turns raw channel frames into canonical events and hands each to
// the handler registered for its type.
type Router struct {
	handlers map[domain.EventType]EventFunc
	log      *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{
		handlers: make(map[domain.EventType]EventFunc),
		log:      log.With("component", "router"),
	}
}

func (r *Router) Handle(t domain.EventType, fn EventFunc) {
	r.handlers[t] = fn
}

// Route decodes and dispatches one frame. Undecodable frames and unknown
// types are logged and reported but never fatal.
func (r *Router) Route(raw map[string]any) error {
	ev, err := Decode(raw)
	if err != nil {
		r.log.Warn("dropping undecodable frame", "error", err)
		return err
	}
	fn, ok := r.handlers[ev.Type]
	if !ok {
		r.log.Warn("ignoring frame", "type", ev.RawType)
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.RawType)
	}
	fn(ev)
	return nil
}

// Decode normalizes a frame in either the flat or the data-nested shape.
func Decode(raw map[string]any) (domain.Event, error) {
	var ev domain.Event
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &ev,
		WeaklyTypedInput: true,
		DecodeHook:       timeHook,
	})
	if err != nil {
		return domain.Event{}, err
	}
	if err := dec.Decode(channel.Flatten(raw)); err != nil {
		return domain.Event{}, fmt.Errorf("decode frame: %w", err)
	}
	ev.Type = domain.ParseEventType(ev.RawType)
	return ev, nil
}

var timeType = reflect.TypeOf(time.Time{})

// timeHook accepts RFC 3339 strings and unix-millisecond numbers.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, v)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	default:
		return data, nil
	}
}
