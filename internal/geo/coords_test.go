package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	cases := []struct {
		name  string
		input string
		shape Shape
		point Point
	}{
		{"latitude longitude", `{"latitude": 14.6, "longitude": 121.03}`, ShapeLatitudeLongitude, Point{Lat: 14.6, Lng: 121.03, Valid: true}},
		{"lat lng", `{"lat": -33.86, "lng": 151.2}`, ShapeLatLng, Point{Lat: -33.86, Lng: 151.2, Valid: true}},
		{"geopoint", `{"_lat": 51.5, "_long": -0.12}`, ShapeGeoPoint, Point{Lat: 51.5, Lng: -0.12, Valid: true}},
		{"geopoint long names", `{"_latitude": 1, "_longitude": 2}`, ShapeGeoPoint, Point{Lat: 1, Lng: 2, Valid: true}},
		{"pair", `[40.7, -74.0]`, ShapePair, Point{Lat: 40.7, Lng: -74.0, Valid: true}},
		{"pair with extra", `[40.7, -74.0, 10]`, ShapePair, Point{Lat: 40.7, Lng: -74.0, Valid: true}},
		{"numeric strings", `{"lat": "10.5", "lng": " 20.25 "}`, ShapeLatLng, Point{Lat: 10.5, Lng: 20.25, Valid: true}},
		{"boundaries", `{"lat": 90, "lng": -180}`, ShapeLatLng, Point{Lat: 90, Lng: -180, Valid: true}},
		{"lat out of range", `{"lat": 91, "lng": 0}`, ShapeLatLng, Point{}},
		{"lng out of range", `[0, 180.5]`, ShapePair, Point{}},
		{"non numeric", `{"latitude": "north", "longitude": 3}`, ShapeLatitudeLongitude, Point{}},
		{"null value", `{"lat": null, "lng": 3}`, ShapeLatLng, Point{}},
		{"empty string", `{"lat": "", "lng": 3}`, ShapeLatLng, Point{}},
		{"missing field", `{"lat": 3}`, ShapeUnrecognized, Point{}},
		{"short pair", `[3]`, ShapeUnrecognized, Point{}},
		{"scalar", `42`, ShapeUnrecognized, Point{}},
		{"null", `null`, ShapeUnrecognized, Point{}},
		{"garbage", `{"lat":`, ShapeUnrecognized, Point{}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			raw := Parse([]byte(tt.input))
			assert.Equal(t, tt.shape, raw.Shape)
			assert.Equal(t, tt.point, Normalize(raw))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"latitude": 14.6, "longitude": 121.03}`,
		`[95, 10]`,
		`{"_lat": -12.5, "_long": 130}`,
		`"nowhere"`,
	}
	for _, input := range inputs {
		first := Normalize(Parse([]byte(input)))
		second := Normalize(first.Raw())
		assert.Equal(t, first, second, input)
	}
}

func TestNormalizeRejectsNonFinite(t *testing.T) {
	assert.False(t, Normalize(RawCoordinates{Shape: ShapeLatLng, Lat: math.NaN(), Lng: 1}).Valid)
	assert.False(t, Normalize(RawCoordinates{Shape: ShapePair, Lat: 1, Lng: math.Inf(1)}).Valid)
	assert.False(t, Normalize(RawCoordinates{Lat: 1, Lng: 1}).Valid)
}

func TestFromDocumentLookupOrder(t *testing.T) {
	doc := `{
		"name": "Branch",
		"coordinates": {"lat": 1, "lng": 2},
		"coords": {"latitude": 3, "longitude": 4},
		"lat": 5, "lng": 6
	}`
	raw := FromDocument([]byte(doc))
	require.Equal(t, ShapeLatitudeLongitude, raw.Shape)
	assert.Equal(t, Point{Lat: 3, Lng: 4, Valid: true}, Normalize(raw))

	raw = FromDocument([]byte(`{"coords": "bad", "location": [7, 8]}`))
	assert.Equal(t, ShapePair, raw.Shape)

	raw = FromDocument([]byte(`{"latitude": 9, "longitude": 10, "lat": 11, "lng": 12}`))
	assert.Equal(t, Point{Lat: 9, Lng: 10, Valid: true}, Normalize(raw))

	raw = FromDocument([]byte(`{"name": "no coords"}`))
	assert.Equal(t, ShapeUnrecognized, raw.Shape)
}

func TestRawCoordinatesJSON(t *testing.T) {
	var doc struct {
		Coords RawCoordinates `json:"coords"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"coords": [1.5, 2.5]}`), &doc))
	assert.Equal(t, ShapePair, doc.Coords.Shape)

	out, err := json.Marshal(doc.Coords)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat": 1.5, "lng": 2.5}`, string(out))

	out, err = json.Marshal(RawCoordinates{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
