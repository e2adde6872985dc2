package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Set(t *testing.T) {
	c := New("video")
	c.Set("name", "world")
	c.Set("Opacity", 0.5)
	c.Set("tile_size", 256)
	c.Set("enabled", true)

	assert.Equal(t, "video", c.Key())
	assert.Equal(t, []string{"name", "opacity", "tileSize", "enabled"}, c.Keys())

	v, ok := c.Get("TileSize")
	assert.True(t, ok)
	assert.Equal(t, "256", v)
	v, _ = c.Get("opacity")
	assert.Equal(t, "0.5", v)

	// overwriting keeps the position
	c.Set("name", "moon")
	assert.Equal(t, []string{"name", "opacity", "tileSize", "enabled"}, c.Keys())
	v, _ = c.Get("name")
	assert.Equal(t, "moon", v)

	// unsetting removes
	c.Set("name", "")
	c.Set("opacity", nil)
	assert.False(t, c.HasValue("name"))
	assert.Equal(t, []string{"tileSize", "enabled"}, c.Keys())
}

func TestConfig_Add(t *testing.T) {
	c := New("")
	profile := New("profile")
	profile.Set("id", "WorldCRS84Quad")
	c.Add(profile)
	c.Add(nil)

	require.NotNil(t, c.Child("profile"))
	assert.False(t, c.HasValue("profile"))
	v, ok := c.Child("profile").Get("id")
	assert.True(t, ok)
	assert.Equal(t, "WorldCRS84Quad", v)
	assert.Nil(t, c.Child("nope"))
	assert.Len(t, c.Children(), 1)

	other := New("")
	other.Set("url", "world.gif")
	c.Merge(other)
	assert.Equal(t, []string{"profile", "url"}, c.Keys())

	c.Remove("profile")
	assert.Equal(t, []string{"url"}, c.Keys())
	assert.False(t, c.Empty())
	assert.True(t, New("x").Empty())
}

type driver string

func TestLookup(t *testing.T) {
	c := New("video")
	c.Set("opacity", 0.25)
	c.Set("tileSize", 512)
	c.Set("enabled", false)
	c.Set("driver", "video")
	c.Set("broken", "not a number")

	opacity := 1.0
	require.NoError(t, Lookup(c, "opacity", &opacity))
	assert.Equal(t, 0.25, opacity)

	var tileSize uint
	require.NoError(t, Lookup(c, "tile_size", &tileSize))
	assert.Equal(t, uint(512), tileSize)

	enabled := true
	require.NoError(t, Lookup(c, "enabled", &enabled))
	assert.False(t, enabled)

	var d driver
	require.NoError(t, Lookup(c, "driver", &d))
	assert.Equal(t, driver("video"), d)

	missing := "untouched"
	require.NoError(t, Lookup(c, "missing", &missing))
	assert.Equal(t, "untouched", missing)

	var broken int
	assert.Error(t, Lookup(c, "broken", &broken))
}

const layersYAML = `video:
  name: world
  url: ../data/world.gif
  opacity: 0.5
  profile:
    id: WorldCRS84Quad
`

func TestParseYAML(t *testing.T) {
	root, err := ParseYAML([]byte(layersYAML))
	require.NoError(t, err)

	require.Len(t, root.Children(), 1)
	video := root.Child("video")
	require.NotNil(t, video)
	assert.Equal(t, []string{"name", "url", "opacity", "profile"}, video.Keys())
	url, _ := video.Get("url")
	assert.Equal(t, "../data/world.gif", url)
	id, _ := video.Child("profile").Get("id")
	assert.Equal(t, "WorldCRS84Quad", id)

	b, err := root.MarshalYAMLBytes()
	require.NoError(t, err)
	assert.Equal(t, layersYAML, string(b))
}

func TestParseYAML_errors(t *testing.T) {
	root, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.True(t, root.Empty())

	_, err = ParseYAML([]byte("video:\n  - a\n  - b\n"))
	assert.ErrorIs(t, err, ErrNotAScalar)
}

func TestParseJSON(t *testing.T) {
	root, err := ParseJSON([]byte(`{"video":{"name":"world","opacity":0.5,"enabled":true,"attribution":null}}`))
	require.NoError(t, err)

	video := root.Child("video")
	require.NotNil(t, video)
	assert.Equal(t, []string{"name", "opacity", "enabled", "attribution"}, video.Keys())
	assert.False(t, video.HasValue("attribution"))
	opacity, _ := video.Get("opacity")
	assert.Equal(t, "0.5", opacity)

	b, err := root.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"video":{"name":"world","opacity":"0.5","enabled":"true","attribution":""}}`, string(b))

	_, err = ParseJSON([]byte(`{"video":[1,2]}`))
	assert.Error(t, err)
}
