package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML reads a document into a root node without key, its top level keys become children
func ParseYAML(data []byte) (*Config, error) {
	root := New("")
	if len(bytes.TrimSpace(data)) == 0 {
		return root, nil
	}
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}

// MarshalYAMLBytes writes the children of c as a document
func (c *Config) MarshalYAMLBytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) MarshalYAML() (interface{}, error) {
	return c.yamlNode(), nil
}

func (c *Config) yamlNode() *yaml.Node {
	if c.children.Len() == 0 {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: c.value}
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	for p := c.children.Oldest(); p != nil; p = p.Next() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: p.Key},
			p.Value.yamlNode(),
		)
	}
	return node
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if c.children == nil {
		*c = *New(c.key)
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil
		}
		return c.UnmarshalYAML(node.Content[0])
	case yaml.AliasNode:
		return c.UnmarshalYAML(node.Alias)
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			c.value = node.Value
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			child := New(node.Content[i].Value)
			if err := child.UnmarshalYAML(node.Content[i+1]); err != nil {
				return fmt.Errorf("%s: %w", child.key, err)
			}
			c.Add(child)
		}
		return nil
	default:
		return fmt.Errorf("line %d: %w", node.Line, ErrNotAScalar)
	}
}

// ParseJSON reads a JSON object into a root node without key, keeping the order of its members
func ParseJSON(data []byte) (*Config, error) {
	root := New("")
	if err := json.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}

func (c *Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) writeJSON(buf *bytes.Buffer) error {
	if c.children.Len() == 0 {
		b, err := json.Marshal(c.value)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	buf.WriteByte('{')
	for p := c.children.Oldest(); p != nil; p = p.Next() {
		if p != c.children.Oldest() {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if err = p.Value.writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (c *Config) UnmarshalJSON(data []byte) error {
	if c.children == nil {
		*c = *New(c.key)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return c.decodeJSON(dec)
}

func (c *Config) decodeJSON(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t != '{' {
			return fmt.Errorf("%s: %w", c.key, ErrNotAScalar)
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("unexpected token %v", keyTok)
			}
			child := New(key)
			if err = child.decodeJSON(dec); err != nil {
				return err
			}
			c.Add(child)
		}
		// closing brace
		if _, err = dec.Token(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	case nil:
	default:
		c.value = format(t)
	}
	return nil
}
