// internal/geoindex/index.go - Image footprint index and its GeoJSON codec
package geoindex

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/valpere/airphoto_tiler/internal"
)

const filenameProperty = "filename"

// ImageRecord is one source image and its footprint in the source CRS
type ImageRecord struct {
	Path   string
	Bounds orb.Bound
}

// ImageIndex is a named collection of image footprints
type ImageIndex struct {
	Name    string
	Records []ImageRecord
}

type featureCollection struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
}

// FeatureCollection renders the index as GeoJSON features, one polygon per image
func (idx *ImageIndex) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, rec := range idx.Records {
		f := geojson.NewFeature(rec.Bounds.ToPolygon())
		f.Properties[filenameProperty] = rec.Path
		fc.Append(f)
	}
	return fc
}

// Marshal encodes the index as a named GeoJSON FeatureCollection
func (idx *ImageIndex) Marshal() ([]byte, error) {
	data, err := json.Marshal(featureCollection{
		Name:     idx.Name,
		Type:     "FeatureCollection",
		Features: idx.FeatureCollection().Features,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image index: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an index written by Marshal
func Unmarshal(data []byte) (*ImageIndex, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to decode image index", err)
	}

	idx := &ImageIndex{Name: fc.Name, Records: make([]ImageRecord, 0, len(fc.Features))}
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, internal.NewError(internal.ErrorCodeValidation,
				fmt.Sprintf("feature %d has no geometry", i), nil)
		}
		path := f.Properties.MustString(filenameProperty, "")
		if path == "" {
			return nil, internal.NewError(internal.ErrorCodeValidation,
				fmt.Sprintf("feature %d has no %s property", i, filenameProperty), nil)
		}
		idx.Records = append(idx.Records, ImageRecord{Path: path, Bounds: f.Geometry.Bound()})
	}
	return idx, nil
}
