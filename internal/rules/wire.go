package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/soa-checker/backend/internal/soa"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

const multiLevelKey = "multi_level"

// LimitTable maps level keys to limits. Decoding also accepts the table wrapped as
// {"multi_level": {...}}; encoding always writes the flat form.
type LimitTable map[string]soa.Limit

func (t *LimitTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	return t.fromRaw(raw)
}

func (t *LimitTable) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return t.fromRaw(raw)
}

func (t *LimitTable) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	return t.fromRaw(raw)
}

func (t *LimitTable) fromRaw(raw map[string]interface{}) error {
	if raw == nil {
		*t = nil
		return nil
	}
	if wrapped, ok := raw[multiLevelKey]; ok {
		if len(raw) > 1 {
			return fmt.Errorf("%w: %s mixed with plain levels", soa.ErrInvalidRule, multiLevelKey)
		}
		inner, ok := stringMap(wrapped)
		if !ok {
			return fmt.Errorf("%w: %s must map levels to limits, got %T", soa.ErrInvalidRule, multiLevelKey, wrapped)
		}
		raw = inner
	}

	out := make(LimitTable, len(raw))
	for level, v := range raw {
		limit, err := soa.ParseLimit(v)
		if err != nil {
			return fmt.Errorf("level %s: %w", level, err)
		}
		out[level] = limit
	}
	*t = out
	return nil
}

// GlobalConfig carries document-wide settings. The checker does not consult it. Keys other
// than version, technology and temperature_scaling are kept in Extra and written back.
type GlobalConfig struct {
	Version            string
	Technology         string
	TemperatureScaling *TemperatureScaling
	Extra              map[string]interface{}
}

type TemperatureScaling struct {
	Enabled     bool
	Method      string
	Description string
	Extra       map[string]interface{}
}

func (g GlobalConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.toMap())
}

func (g *GlobalConfig) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return g.fromMap(m)
}

func (g GlobalConfig) MarshalYAML() (interface{}, error) {
	return g.toMap(), nil
}

func (g *GlobalConfig) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]interface{}
	if err := node.Decode(&m); err != nil {
		return err
	}
	return g.fromMap(m)
}

func (g GlobalConfig) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(g.toMap())
}

func (g *GlobalConfig) DecodeMsgpack(dec *msgpack.Decoder) error {
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	return g.fromMap(m)
}

func (g GlobalConfig) toMap() map[string]interface{} {
	m := make(map[string]interface{}, len(g.Extra)+3)
	for k, v := range g.Extra {
		m[k] = v
	}
	if g.Version != "" {
		m["version"] = g.Version
	}
	if g.Technology != "" {
		m["technology"] = g.Technology
	}
	if ts := g.TemperatureScaling; ts != nil {
		tm := make(map[string]interface{}, len(ts.Extra)+3)
		for k, v := range ts.Extra {
			tm[k] = v
		}
		tm["enabled"] = ts.Enabled
		if ts.Method != "" {
			tm["method"] = ts.Method
		}
		if ts.Description != "" {
			tm["description"] = ts.Description
		}
		m["temperature_scaling"] = tm
	}
	return m
}

func (g *GlobalConfig) fromMap(m map[string]interface{}) error {
	*g = GlobalConfig{}
	for k, v := range m {
		switch k {
		case "version":
			g.Version = scalarString(v)
		case "technology":
			g.Technology = scalarString(v)
		case "temperature_scaling":
			ts, err := temperatureScaling(v)
			if err != nil {
				return err
			}
			g.TemperatureScaling = ts
		default:
			if g.Extra == nil {
				g.Extra = make(map[string]interface{})
			}
			g.Extra[k] = normalize(v)
		}
	}
	return nil
}

func temperatureScaling(v interface{}) (*TemperatureScaling, error) {
	m, ok := stringMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: temperature_scaling must be a mapping, got %T", soa.ErrInvalidRule, v)
	}
	ts := &TemperatureScaling{}
	for k, val := range m {
		switch k {
		case "enabled":
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: temperature_scaling.enabled must be a boolean, got %T", soa.ErrInvalidRule, val)
			}
			ts.Enabled = b
		case "method":
			ts.Method = scalarString(val)
		case "description":
			ts.Description = scalarString(val)
		default:
			if ts.Extra == nil {
				ts.Extra = make(map[string]interface{})
			}
			ts.Extra[k] = normalize(val)
		}
	}
	return ts, nil
}

func (g *GlobalConfig) clone() *GlobalConfig {
	if g == nil {
		return nil
	}
	out := *g
	out.Extra = cloneMap(g.Extra)
	if g.TemperatureScaling != nil {
		ts := *g.TemperatureScaling
		ts.Extra = cloneMap(ts.Extra)
		out.TemperatureScaling = &ts
	}
	return &out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func scalarString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// stringMap accepts both map shapes the decoders produce.
func stringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// normalize rewrites nested maps to string keys so every encoder can write them back.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		m, _ := stringMap(x)
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
