// Package config holds layer configuration as an ordered key-value tree, read from and written to YAML or JSON.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pdok/videolayer/mapslicehelp"

	"github.com/iancoleman/strcase"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrNotAScalar = errors.New("config value is not a scalar")

// Config is a node in a configuration tree. A node has a key, an optional value and ordered children.
// Keys are normalized to lower camel case, so tile_size, TileSize and tileSize are the same key.
type Config struct {
	key      string
	value    string
	children *orderedmap.OrderedMap[string, *Config]
}

func New(key string) *Config {
	return &Config{
		key:      NormalizeKey(key),
		children: orderedmap.New[string, *Config](),
	}
}

// NewValue returns a leaf node
func NewValue(key string, value any) *Config {
	c := New(key)
	c.value = format(value)
	return c
}

func NormalizeKey(key string) string {
	return strcase.ToLowerCamel(key)
}

func (c *Config) Key() string {
	return c.key
}

func (c *Config) Value() string {
	return c.value
}

func (c *Config) SetValue(value any) {
	c.value = format(value)
}

// Empty is true for a node without value and without children
func (c *Config) Empty() bool {
	return c.value == "" && c.children.Len() == 0
}

// Set sets the value of the child with key, creating it when needed.
// A nil value or empty string removes the child, like an unset option.
func (c *Config) Set(key string, value any) {
	key = NormalizeKey(key)
	s := format(value)
	if s == "" {
		c.children.Delete(key)
		return
	}
	if child, ok := c.children.Get(key); ok {
		child.value = s
		return
	}
	c.children.Set(key, &Config{key: key, value: s, children: orderedmap.New[string, *Config]()})
}

// Add adds child, replacing an existing child with the same key but keeping its position
func (c *Config) Add(child *Config) {
	if child == nil {
		return
	}
	c.children.Set(child.key, child)
}

// Merge adds all children of other, replacing those already present
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	for p := other.children.Oldest(); p != nil; p = p.Next() {
		c.children.Set(p.Key, p.Value)
	}
}

func (c *Config) Remove(key string) {
	c.children.Delete(NormalizeKey(key))
}

// Child returns the child with key or nil
func (c *Config) Child(key string) *Config {
	child, _ := c.children.Get(NormalizeKey(key))
	return child
}

// Children returns the children in insertion order
func (c *Config) Children() []*Config {
	return mapslicehelp.OrderedMapValues(c.children)
}

// Keys returns the keys of the children in insertion order
func (c *Config) Keys() []string {
	return mapslicehelp.OrderedMapKeys(c.children)
}

// HasValue is true when the child with key exists and has a value
func (c *Config) HasValue(key string) bool {
	child := c.Child(key)
	return child != nil && child.value != ""
}

// Get returns the value of the child with key
func (c *Config) Get(key string) (string, bool) {
	if !c.HasValue(key) {
		return "", false
	}
	return c.Child(key).value, true
}

// Scalar is a type a config value can be parsed into
type Scalar interface {
	~string | ~bool | ~int | ~int64 | ~uint | ~float32 | ~float64
}

// Lookup parses the value of the child with key into target.
// target is left alone when the child has no value.
func Lookup[T Scalar](c *Config, key string, target *T) error {
	s, ok := c.Get(key)
	if !ok {
		return nil
	}
	v, err := parse[T](s)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", NormalizeKey(key), err)
	}
	*target = v
	return nil
}

func parse[T Scalar](s string) (T, error) {
	var zero T
	var parsed any
	var err error
	switch any(zero).(type) {
	case string:
		parsed = s
	case bool:
		parsed, err = strconv.ParseBool(s)
	case int:
		parsed, err = strconv.Atoi(s)
	case int64:
		parsed, err = strconv.ParseInt(s, 10, 64)
	case uint:
		var u uint64
		u, err = strconv.ParseUint(s, 10, 0)
		parsed = uint(u)
	case float32:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		parsed = float32(f)
	case float64:
		parsed, err = strconv.ParseFloat(s, 64)
	default:
		// named types, go through their underlying kind
		return parseNamed[T](s)
	}
	if err != nil {
		return zero, err
	}
	return parsed.(T), nil
}

func parseNamed[T Scalar](s string) (T, error) {
	var v T
	_, err := fmt.Sscan(s, &v)
	return v, err
}

func format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case *float64:
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (c *Config) String() string {
	b, err := c.MarshalYAMLBytes()
	if err != nil {
		return fmt.Sprintf("%s: <%v>", c.key, err)
	}
	return string(b)
}
