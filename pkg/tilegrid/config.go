// pkg/tilegrid/config.go - Grid configuration loading and validation
package tilegrid

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// GridConfig anchors the tile grid: the lower-left corner of the base zoom
// level and the edge length of one base tile, all in output-CRS degrees.
type GridConfig struct {
	XMin     float64 `json:"xmin" validate:"gte=-180,lte=180"`
	YMin     float64 `json:"ymin" validate:"gte=-90,lte=90"`
	BaseZoom int     `json:"zoom" validate:"gte=0,lte=30"`
	Side     float64 `json:"side" validate:"gt=0"`
}

// gridConfigFile mirrors the on-disk layout. Pointers detect missing keys.
type gridConfigFile struct {
	GridBounds struct {
		XMin *float64 `json:"xmin" validate:"required"`
		YMin *float64 `json:"ymin" validate:"required"`
	} `json:"gridbounds"`
	GridOffsets struct {
		Zoom *int     `json:"zoom" validate:"required"`
		Side *float64 `json:"side" validate:"required"`
	} `json:"gridoffsets"`
}

var validate = validator.New()

// ParseGridConfig decodes a grid configuration document of the form
// {"gridbounds":{"xmin":..,"ymin":..},"gridoffsets":{"zoom":..,"side":..}}.
// Additional keys are ignored.
func ParseGridConfig(data []byte) (GridConfig, error) {
	var file gridConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return GridConfig{}, fmt.Errorf("failed to decode grid configuration: %w", err)
	}
	if err := validate.Struct(&file); err != nil {
		return GridConfig{}, fmt.Errorf("incomplete grid configuration: %w", err)
	}

	cfg := GridConfig{
		XMin:     *file.GridBounds.XMin,
		YMin:     *file.GridBounds.YMin,
		BaseZoom: *file.GridOffsets.Zoom,
		Side:     *file.GridOffsets.Side,
	}
	if err := cfg.Validate(); err != nil {
		return GridConfig{}, err
	}
	return cfg, nil
}

// Validate checks the value ranges of the configuration
func (c GridConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid grid configuration: %w", err)
	}
	return nil
}
