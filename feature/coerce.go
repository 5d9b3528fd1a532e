package feature

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/schema"

	"github.com/paulmach/orb"
)

var ErrInvalidValue = errors.New("invalid attribute value")

// Normalize returns a copy of the feature with every value coerced to its attribute
// binding and every geometry transformed into the declared reference system.
//
// Missing values of attributes that are neither nillable nor optional are rejected,
// as are values for attributes the feature type does not declare.
func Normalize(f *Feature) (*Feature, error) {
	if f.Type == nil {
		return nil, errors.New("feature has no type")
	}
	for name := range f.Values {
		if _, ok := f.Type.Attribute(name); !ok {
			return nil, fmt.Errorf("%w: unknown attribute %s", ErrInvalidValue, name)
		}
	}
	out := &Feature{
		ID:      f.ID,
		Version: f.Version,
		Type:    f.Type,
		Values:  make(map[string]any, len(f.Type.Attributes)),
		CRS:     make(map[string]geom.CRS),
	}
	for i := range f.Type.Attributes {
		attr := &f.Type.Attributes[i]
		value, err := Coerce(attr, f.Values[attr.Name])
		if err != nil {
			return nil, err
		}
		if g, ok := value.(orb.Geometry); ok {
			value, err = geom.Transform(g, f.AttributeCRS(attr.Name), DeclaredCRS(attr))
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
		}
		out.Values[attr.Name] = value
	}
	return out, nil
}

// Coerce returns the value converted to the binding of the given attribute.
func Coerce(attr *schema.Attribute, value any) (any, error) {
	if value == nil {
		if !attr.Nillable && attr.MinOccurs > 0 {
			return nil, fmt.Errorf("%w: attribute %s is required", ErrInvalidValue, attr.Name)
		}
		return nil, nil
	}
	out, err := coerce(attr.Type.Binding, value)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %s: %w", ErrInvalidValue, attr.Name, err)
	}
	return out, nil
}

func coerce(binding schema.Binding, value any) (any, error) {
	switch binding {
	case schema.BindingString:
		return toString(value)
	case schema.BindingInt:
		return toInt(value)
	case schema.BindingFloat:
		return toFloat(value)
	case schema.BindingBool:
		return toBool(value)
	case schema.BindingTime:
		return toTime(value)
	}
	if binding.IsGeometry() {
		return toGeometry(binding, value)
	}
	return nil, fmt.Errorf("unsupported binding %s", binding)
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", value)
	}
}

func floatToInt(v float64) (int64, error) {
	if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	return int64(v), nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	i, err := toInt(value)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
	return float64(i), nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", value)
	}
}

func toGeometry(binding schema.Binding, value any) (orb.Geometry, error) {
	g, ok := value.(orb.Geometry)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to geometry", value)
	}
	switch v := g.(type) {
	case orb.Ring:
		g = orb.Polygon{v}
	case orb.Bound:
		g = v.ToPolygon()
	}
	if binding == schema.BindingGeometry {
		return g, nil
	}
	// single geometries are accepted where the multi variant is declared
	switch v := g.(type) {
	case orb.Point:
		if binding == schema.BindingMultiPoint {
			return orb.MultiPoint{v}, nil
		}
	case orb.LineString:
		if binding == schema.BindingMultiLineString {
			return orb.MultiLineString{v}, nil
		}
	case orb.Polygon:
		if binding == schema.BindingMultiPolygon {
			return orb.MultiPolygon{v}, nil
		}
	}
	if schema.Binding("orb."+g.GeoJSONType()) != binding {
		return nil, fmt.Errorf("cannot convert %s to %s", g.GeoJSONType(), binding)
	}
	return g, nil
}
