package layer

import (
	"fmt"

	"github.com/pdok/videolayer/config"
	"github.com/pdok/videolayer/tms20"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ImageLayerOptions are the settings every image layer shares
type ImageLayerOptions struct {
	Name        string  `json:"name"`
	Opacity     float64 `default:"1" validate:"gte=0,lte=1" json:"opacity"`
	Attribution string  `json:"attribution"`
	Enabled     bool    `default:"true" json:"enabled"`
	// TileSize is the width and height in pixels of the images a layer creates
	TileSize  uint   `default:"256" validate:"gte=1,lte=4096" json:"tileSize"`
	ProfileID string `default:"WorldCRS84Quad" validate:"required" json:"profile"`
}

// NewImageLayerOptions returns options with their defaults set
func NewImageLayerOptions() ImageLayerOptions {
	var o ImageLayerOptions
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return o
}

func (o ImageLayerOptions) Validate() error {
	return validate.Struct(o)
}

// GetConfig writes the options as children of a config with key driver
func (o ImageLayerOptions) GetConfig(driver string) *config.Config {
	conf := config.New(driver)
	conf.Set("name", o.Name)
	conf.Set("opacity", o.Opacity)
	conf.Set("attribution", o.Attribution)
	conf.Set("enabled", o.Enabled)
	conf.Set("tileSize", o.TileSize)
	conf.Set("profile", o.ProfileID)
	return conf
}

// FromConfig reads the options that are present in conf, others keep their value
func (o *ImageLayerOptions) FromConfig(conf *config.Config) error {
	if conf == nil {
		return nil
	}
	for _, err := range []error{
		config.Lookup(conf, "name", &o.Name),
		config.Lookup(conf, "opacity", &o.Opacity),
		config.Lookup(conf, "attribution", &o.Attribution),
		config.Lookup(conf, "enabled", &o.Enabled),
		config.Lookup(conf, "tileSize", &o.TileSize),
		config.Lookup(conf, "profile", &o.ProfileID),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// VideoLayerOptions configure a layer that drapes a video (or still image) over the globe
type VideoLayerOptions struct {
	ImageLayerOptions
	URL string `json:"url"`
}

func NewVideoLayerOptions() VideoLayerOptions {
	return VideoLayerOptions{
		ImageLayerOptions: NewImageLayerOptions(),
	}
}

// GetConfig writes the inherited options followed by the url
func (o VideoLayerOptions) GetConfig() *config.Config {
	conf := o.ImageLayerOptions.GetConfig(Driver)
	conf.Set("url", o.URL)
	return conf
}

func (o *VideoLayerOptions) FromConfig(conf *config.Config) error {
	if err := o.ImageLayerOptions.FromConfig(conf); err != nil {
		return err
	}
	if conf == nil {
		return nil
	}
	return config.Lookup(conf, "url", &o.URL)
}

// profileIsGlobalGeodetic checks that a configured profile lays out the same grid as the global geodetic one
func profileIsGlobalGeodetic(id string, global *tms20.TileMatrixSet) error {
	if id == global.ID {
		return nil
	}
	profile, err := tms20.LoadEmbeddedTileMatrixSet(id)
	if err != nil {
		return fmt.Errorf("unknown profile %s: %w", id, err)
	}
	if !profile.IsEquivalentTo(global) {
		return fmt.Errorf("profile %s is not equivalent to %s", id, global.ID)
	}
	return nil
}
