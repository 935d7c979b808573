package pathfinder

import "fmt"

// WeightError is a fatal edge-weight resolution error. It is detected
// lazily, the first time the offending edge is traversed, and aborts the
// in-progress query.
type WeightError struct {
	Property string
	Value    interface{}
	Msg      string
}

func (e *WeightError) Error() string {
	return fmt.Sprintf("weight: the value of %s %s, actual got '%v'",
		e.Property, e.Msg, e.Value)
}

// WeightConfig derives a positive weight for every edge from a named
// property, falling back to a default when the property is absent.
// Immutable once built.
type WeightConfig struct {
	Property string
	Default  float64
}

// NewWeightConfig validates the weight options. A blank property name means
// every edge costs the default. The default must be positive.
func NewWeightConfig(property string, defaultWeight float64) (WeightConfig, error) {
	if defaultWeight <= 0 {
		return WeightConfig{}, &ConfigError{
			Param: OptionDefaultWeight,
			Msg:   fmt.Sprintf("must be greater than 0, actual got '%v'", defaultWeight),
		}
	}
	return WeightConfig{Property: property, Default: defaultWeight}, nil
}

// EdgeWeight resolves the weight of one edge. Deterministic and
// side-effect-free; called once per outgoing edge per forwarding event.
func (c WeightConfig) EdgeWeight(edge Edge) (float64, error) {
	if c.Property == "" {
		return c.Default, nil
	}

	raw, ok := edge.Property(c.Property)
	if !ok {
		return c.Default, nil
	}

	weight, numeric := asFloat(raw)
	if !numeric {
		return 0, &WeightError{
			Property: c.Property,
			Value:    raw,
			Msg:      "must be a numeric value",
		}
	}
	if weight <= 0 {
		return 0, &WeightError{
			Property: c.Property,
			Value:    raw,
			Msg:      "must be greater than 0",
		}
	}
	return weight, nil
}

// asFloat coerces the numeric types edge properties arrive as after storage
// decoding. Strings and everything else are not numeric.
func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
