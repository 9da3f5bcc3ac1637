// Package geo turns the coordinate shapes found on location documents into a
// single latitude/longitude pair.
package geo

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type Shape int

const (
	ShapeUnrecognized Shape = iota
	// ShapeLatitudeLongitude is {"latitude": .., "longitude": ..}.
	ShapeLatitudeLongitude
	// ShapeLatLng is {"lat": .., "lng": ..}.
	ShapeLatLng
	// ShapeGeoPoint is a serialized geopoint, {"_lat": .., "_long": ..}.
	ShapeGeoPoint
	// ShapePair is an ordered [lat, lng] array.
	ShapePair
)

func (s Shape) String() string {
	switch s {
	case ShapeLatitudeLongitude:
		return "latitude_longitude"
	case ShapeLatLng:
		return "lat_lng"
	case ShapeGeoPoint:
		return "geopoint"
	case ShapePair:
		return "pair"
	default:
		return "unrecognized"
	}
}

// RawCoordinates is one recognized input shape. Lat and Lng hold NaN when the
// shape was recognized but a value could not be read as a number.
type RawCoordinates struct {
	Shape Shape
	Lat   float64
	Lng   float64
}

// Point is the normalized form. A Point with Valid false carries zero values.
type Point struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Valid bool    `json:"valid"`
}

// Raw converts a point back into an input shape.
func (p Point) Raw() RawCoordinates {
	if !p.Valid {
		return RawCoordinates{}
	}
	return RawCoordinates{Shape: ShapeLatLng, Lat: p.Lat, Lng: p.Lng}
}

func Normalize(raw RawCoordinates) Point {
	if raw.Shape == ShapeUnrecognized {
		return Point{}
	}
	if !InRange(raw.Lat, raw.Lng) {
		return Point{}
	}
	return Point{Lat: raw.Lat, Lng: raw.Lng, Valid: true}
}

func InRange(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func (r *RawCoordinates) UnmarshalJSON(data []byte) error {
	*r = Parse(data)
	return nil
}

func (r RawCoordinates) MarshalJSON() ([]byte, error) {
	point := Normalize(r)
	if !point.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]float64{"lat": point.Lat, "lng": point.Lng})
}

// Parse classifies a JSON value. Anything that is not one of the four known
// shapes comes back as ShapeUnrecognized.
func Parse(data []byte) RawCoordinates {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return RawCoordinates{}
	}
	switch data[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil || len(pair) < 2 {
			return RawCoordinates{}
		}
		return RawCoordinates{Shape: ShapePair, Lat: number(pair[0]), Lng: number(pair[1])}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return RawCoordinates{}
		}
		return fromFields(fields)
	default:
		return RawCoordinates{}
	}
}

func fromFields(fields map[string]json.RawMessage) RawCoordinates {
	if lat, lng, ok := pick(fields, "latitude", "longitude"); ok {
		return RawCoordinates{Shape: ShapeLatitudeLongitude, Lat: number(lat), Lng: number(lng)}
	}
	if lat, lng, ok := pick(fields, "lat", "lng"); ok {
		return RawCoordinates{Shape: ShapeLatLng, Lat: number(lat), Lng: number(lng)}
	}
	if lat, lng, ok := pick(fields, "_lat", "_long"); ok {
		return RawCoordinates{Shape: ShapeGeoPoint, Lat: number(lat), Lng: number(lng)}
	}
	if lat, lng, ok := pick(fields, "_latitude", "_longitude"); ok {
		return RawCoordinates{Shape: ShapeGeoPoint, Lat: number(lat), Lng: number(lng)}
	}
	return RawCoordinates{}
}

// FromDocument finds the coordinates of a whole location document. Nested
// fields win over top-level ones: coords, coordinates, location, then
// latitude/longitude and lat/lng on the document itself.
func FromDocument(data []byte) RawCoordinates {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawCoordinates{}
	}
	for _, key := range []string{"coords", "coordinates", "location"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		raw := Parse(value)
		if raw.Shape != ShapeUnrecognized {
			return raw
		}
	}
	return fromFields(fields)
}

func pick(fields map[string]json.RawMessage, latKey, lngKey string) (json.RawMessage, json.RawMessage, bool) {
	lat, ok := fields[latKey]
	if !ok {
		return nil, nil, false
	}
	lng, ok := fields[lngKey]
	if !ok {
		return nil, nil, false
	}
	return lat, lng, true
}

func number(data json.RawMessage) float64 {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return math.NaN()
	}
	switch v := value.(type) {
	case float64:
		return v
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return math.NaN()
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return parsed
	default:
		return math.NaN()
	}
}
