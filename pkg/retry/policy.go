package retry

import (
	"fmt"
	"reflect"
	"time"

	"github.com/juju/retry"
	"github.com/mitchellh/mapstructure"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/schema"
)

// Default policy values.
const (
	DefaultMaxRetries = 10
	DefaultFactor     = 2
	DefaultMinDelay   = time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `mapstructure:"retries"`
	// Forever ignores MaxRetries and retries until success, a terminal
	// failure, or cancellation.
	Forever  bool          `mapstructure:"forever"`
	MinDelay time.Duration `mapstructure:"min_timeout"`
	MaxDelay time.Duration `mapstructure:"max_timeout"`
	Factor   float64       `mapstructure:"factor"`
	Jitter   bool          `mapstructure:"randomize"`
}

// DefaultPolicy returns the policy used when nothing else is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		MinDelay:   DefaultMinDelay,
		MaxDelay:   DefaultMaxDelay,
		Factor:     DefaultFactor,
	}
}

// Override returns o with its unset delays and factor taken from p. A nil
// o yields p unchanged.
func (p Policy) Override(o *Policy) Policy {
	if o == nil {
		return p
	}
	merged := *o
	if merged.MinDelay == 0 {
		merged.MinDelay = p.MinDelay
	}
	if merged.MaxDelay == 0 {
		merged.MaxDelay = p.MaxDelay
		if merged.MaxDelay < merged.MinDelay {
			merged.MaxDelay = merged.MinDelay
		}
	}
	if merged.Factor == 0 {
		merged.Factor = p.Factor
	}
	return merged
}

// Validate reports a ValidationError when the policy cannot drive a retry loop.
func (p Policy) Validate() error {
	var reasons []string
	if p.MaxRetries < 0 {
		reasons = append(reasons, fmt.Sprintf("retries must be >= 0, got %d", p.MaxRetries))
	}
	if p.MinDelay <= 0 {
		reasons = append(reasons, fmt.Sprintf("min_timeout must be positive, got %s", p.MinDelay))
	}
	if p.MaxDelay < p.MinDelay {
		reasons = append(reasons, fmt.Sprintf("max_timeout %s is below min_timeout %s", p.MaxDelay, p.MinDelay))
	}
	if p.Factor < 1 {
		reasons = append(reasons, fmt.Sprintf("factor must be >= 1, got %g", p.Factor))
	}
	if len(reasons) > 0 {
		return errors.Invalid("retry policy", reasons...)
	}
	return nil
}

// Attempts is the total number of calls the policy allows, or -1 for no limit.
func (p Policy) Attempts() int {
	if p.Forever {
		return -1
	}
	return p.MaxRetries + 1
}

// Backoff returns the delay function handed to retry.Call.
func (p Policy) Backoff() func(time.Duration, int) time.Duration {
	return retry.ExpBackoff(p.MinDelay, p.MaxDelay, p.Factor, p.Jitter)
}

func (p Policy) String() string {
	retries := fmt.Sprint(p.MaxRetries)
	if p.Forever {
		retries = "forever"
	}
	return fmt.Sprintf("retries=%s delay=%s..%s factor=%g jitter=%t", retries, p.MinDelay, p.MaxDelay, p.Factor, p.Jitter)
}

// FromOptions decodes a retry block (retries, factor, min_timeout,
// max_timeout, randomize, forever) on top of base. Timeouts are either
// duration strings ("1.5s") or integer milliseconds.
func FromOptions(base Policy, raw map[string]interface{}) (Policy, error) {
	if len(raw) == 0 {
		return base, nil
	}
	if err := schema.Validate(schema.RetryOptions, raw); err != nil {
		return Policy{}, err
	}

	p := base
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       durationHook,
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return Policy{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Policy{}, errors.Invalid("retry policy", err.Error())
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case uint64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	}
	return data, nil
}
