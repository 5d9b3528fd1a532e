package filter

import (
	"fmt"
	"slices"

	"github.com/nasdf/geocapy/geom"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

const (
	andFilter        = "and"
	orFilter         = "or"
	notFilter        = "not"
	idsFilter        = "ids"
	bboxFilter       = "bbox"
	intersectsFilter = "intersects"
	inFilter         = "in"
	notInFilter      = "nin"
)

// Parse returns the filter described by a document of operators.
//
// Documents use the following form:
//
//	{"and": [...], "or": [...], "not": {...}}
//	{"ids": ["Road.1", {"id": "Road.2", "version": "bafy..."}]}
//	{"bbox": {"attribute": "geom", "bounds": [minx, miny, maxx, maxy], "crs": "EPSG:4326"}}
//	{"intersects": {"attribute": "geom", "wkt": "POINT(1 2)", "crs": "EPSG:4326"}}
//	{"<attribute>": {"eq": 1, "neq": 1, "gt": 1, "gte": 1, "lt": 1, "lte": 1, "in": [...], "nin": [...]}}
//
// Multiple keys are combined with and. A nil or empty document matches every feature.
func Parse(doc map[string]any) (Filter, error) {
	if len(doc) == 0 {
		return Include, nil
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var filters And
	for _, key := range keys {
		f, err := parseKey(key, doc[key])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return filters, nil
}

func parseKey(key string, value any) (Filter, error) {
	switch key {
	case andFilter:
		list, err := parseList(value)
		if err != nil {
			return nil, err
		}
		return And(list), nil
	case orFilter:
		list, err := parseList(value)
		if err != nil {
			return nil, err
		}
		return Or(list), nil
	case notFilter:
		doc, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid not filter %v", value)
		}
		sub, err := Parse(doc)
		if err != nil {
			return nil, err
		}
		return Not{Filter: sub}, nil
	case idsFilter:
		return parseIDs(value)
	case bboxFilter:
		return parseBBox(value)
	case intersectsFilter:
		return parseIntersects(value)
	default:
		return parseAttribute(key, value)
	}
}

func parseList(value any) ([]Filter, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid filter list %v", value)
	}
	out := make([]Filter, 0, len(list))
	for _, v := range list {
		doc, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid filter %v", v)
		}
		f, err := Parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseIDs(value any) (Filter, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid ids filter %v", value)
	}
	var out ResourceID
	for _, v := range list {
		switch id := v.(type) {
		case string:
			out.IDs = append(out.IDs, FeatureID{ID: id})
		case map[string]any:
			fid, _ := id["id"].(string)
			version, _ := id["version"].(string)
			if fid == "" {
				return nil, fmt.Errorf("invalid feature id %v", v)
			}
			out.IDs = append(out.IDs, FeatureID{ID: fid, Version: version})
		default:
			return nil, fmt.Errorf("invalid feature id %v", v)
		}
	}
	return out, nil
}

func parseBBox(value any) (Filter, error) {
	doc, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid bbox filter %v", value)
	}
	bounds, ok := doc["bounds"].([]any)
	if !ok || len(bounds) != 4 {
		return nil, fmt.Errorf("bbox filter requires four bounds")
	}
	var values [4]float64
	for i, v := range bounds {
		values[i], ok = asFloat(v)
		if !ok {
			return nil, fmt.Errorf("invalid bbox value %v", v)
		}
	}
	attribute, _ := doc["attribute"].(string)
	crs, _ := doc["crs"].(string)
	return BBox{
		Attribute: attribute,
		Bound:     orb.Bound{Min: orb.Point{values[0], values[1]}, Max: orb.Point{values[2], values[3]}},
		CRS:       geom.Parse(crs),
	}, nil
}

func parseIntersects(value any) (Filter, error) {
	doc, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid intersects filter %v", value)
	}
	text, _ := doc["wkt"].(string)
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("invalid intersects geometry: %w", err)
	}
	attribute, _ := doc["attribute"].(string)
	crs, _ := doc["crs"].(string)
	return Intersects{
		Attribute: attribute,
		Geometry:  g,
		CRS:       geom.Parse(crs),
	}, nil
}

func parseAttribute(name string, value any) (Filter, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return Compare{Attribute: name, Op: Equal, Value: normalize(value)}, nil
	}
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var filters And
	for _, key := range keys {
		val := ops[key]
		switch Operator(key) {
		case Equal, NotEqual, Greater, GreaterOrEqual, Less, LessOrEqual:
			filters = append(filters, Compare{Attribute: name, Op: Operator(key), Value: normalize(val)})
			continue
		}
		switch key {
		case inFilter, notInFilter:
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("invalid %s filter %v", key, val)
			}
			values := make([]any, len(list))
			for i, v := range list {
				values[i] = normalize(v)
			}
			var f Filter = In{Attribute: name, Values: values}
			if key == notInFilter {
				f = Not{Filter: f}
			}
			filters = append(filters, f)
		default:
			return nil, fmt.Errorf("invalid filter operator %s", key)
		}
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return filters, nil
}

// normalize converts document numbers to the widest matching type.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
