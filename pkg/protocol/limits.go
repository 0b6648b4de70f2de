package protocol

// Size and depth limits applied to inbound messages.
const (
	// MaxMessageSize is the largest envelope accepted, in bytes.
	MaxMessageSize = 1 << 20

	// MaxValueDepth limits how deeply arrays and objects may nest inside an
	// envelope.
	MaxValueDepth = 64
)

// Limits configures the inbound limits of a Codec.
// Use DefaultLimits() for sensible defaults.
type Limits struct {
	MessageSize int
	ValueDepth  int
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{
		MessageSize: MaxMessageSize,
		ValueDepth:  MaxValueDepth,
	}
}

// depthContext tracks the current depth while walking a decoded value.
type depthContext struct {
	current int
	max     int
}

func newDepthContext(max int) *depthContext {
	return &depthContext{max: max}
}

// enter increments the depth and returns an error if the limit would be
// exceeded. The depth is only incremented on success.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}

// check walks v and fails if arrays and objects nest deeper than the
// context allows.
func (dc *depthContext) check(v any) error {
	switch t := v.(type) {
	case map[string]any:
		if err := dc.enter(); err != nil {
			return err
		}
		defer dc.leave()
		for _, e := range t {
			if err := dc.check(e); err != nil {
				return err
			}
		}
	case []any:
		if err := dc.enter(); err != nil {
			return err
		}
		defer dc.leave()
		for _, e := range t {
			if err := dc.check(e); err != nil {
				return err
			}
		}
	}
	return nil
}
