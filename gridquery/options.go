package gridquery

import (
	"fmt"
	"log/slog"

	"github.com/gabisonia/go-gridquery/griddata"
)

const defaultMaxConcurrency = 8

// Options configures a Service.
type Options struct {
	// MaxConcurrency bounds the store calls one query keeps in flight.
	MaxConcurrency int
	// Observer receives pipeline, count and error events. When nil, a
	// SlogObserver is built from Logger, or events are dropped.
	Observer Observer
	Logger   *slog.Logger
	// ReviveDates turns ISO-8601 strings in comparison values into time
	// values before the filter reaches the store. Stores compare them with
	// native dates and with ISO-8601 date strings; text operators keep
	// their string operands.
	ReviveDates bool
}

// DefaultOptions returns production-safe defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: defaultMaxConcurrency,
		ReviveDates:    true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	if o.Observer == nil {
		if o.Logger != nil {
			o.Observer = SlogObserver{Logger: o.Logger}
		} else {
			o.Observer = NopObserver{}
		}
	}
	return o
}

func (o Options) validate() error {
	if o.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max concurrency must be > 0", griddata.ErrInvalidQuery)
	}
	if o.Observer == nil {
		return fmt.Errorf("%w: observer is nil", griddata.ErrInvalidQuery)
	}
	return nil
}
