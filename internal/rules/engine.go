package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/soa-checker/backend/internal/soa"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Engine is the in-memory registry of device rule sets.
type Engine struct {
	mu           sync.RWMutex
	strict       bool
	log          *zap.Logger
	version      string
	technology   string
	globalConfig *GlobalConfig
	devices      map[string]*soa.Device
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict makes AddDevice and the loaders reject keys that are already registered.
func WithStrict() Option {
	return func(e *Engine) { e.strict = true }
}

// WithLogger sets the logger used to report loads.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:     zap.NewNop(),
		devices: make(map[string]*soa.Device),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Info summarizes the registry contents.
type Info struct {
	Version        string        `json:"version,omitempty"`
	Technology     string        `json:"technology,omitempty"`
	GlobalConfig   *GlobalConfig `json:"globalConfig,omitempty"`
	DeviceCount    int           `json:"deviceCount"`
	ParameterCount int           `json:"parameterCount"`
	Strict         bool          `json:"strict"`
}

func (e *Engine) Strict() bool { return e.strict }

// AddDevice registers d under key, replacing any existing device unless the engine is strict.
func (e *Engine) AddDevice(key string, d *soa.Device) error {
	if key == "" || d == nil {
		return fmt.Errorf("%w: device key and device are required", soa.ErrInvalidRule)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.devices[key]; exists && e.strict {
		return fmt.Errorf("device %s: %w", key, soa.ErrDuplicateKey)
	}
	e.devices[key] = d
	return nil
}

// LoadJSON validates and merges a JSON rule document.
func (e *Engine) LoadJSON(data []byte) error {
	return e.Load(data, FormatJSON)
}

// LoadYAML validates and merges a YAML rule document.
func (e *Engine) LoadYAML(data []byte) error {
	return e.Load(data, FormatYAML)
}

// LoadMsgpack validates and merges a msgpack rule document.
func (e *Engine) LoadMsgpack(data []byte) error {
	return e.Load(data, FormatMsgpack)
}

// Load decodes data in the given format and merges it into the registry.
func (e *Engine) Load(data []byte, format Format) error {
	doc, err := Decode(data, format)
	if err != nil {
		return err
	}
	return e.LoadDocument(doc)
}

// LoadDocument validates doc as a whole and merges its devices. On any error the registry is
// left untouched.
func (e *Engine) LoadDocument(doc *Document) error {
	return e.merge(doc, e.strict)
}

// LoadDocumentStrict is LoadDocument with duplicate keys rejected regardless of the
// registry's mode.
func (e *Engine) LoadDocumentStrict(doc *Document) error {
	return e.merge(doc, true)
}

func (e *Engine) merge(doc *Document, strict bool) error {
	devices, err := doc.build()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if strict {
		for _, key := range sortedKeys(devices) {
			if _, exists := e.devices[key]; exists {
				return fmt.Errorf("device %s: %w", key, soa.ErrDuplicateKey)
			}
		}
	}

	next := make(map[string]*soa.Device, len(e.devices)+len(devices))
	for k, d := range e.devices {
		next[k] = d
	}
	for k, d := range devices {
		next[k] = d
	}
	e.devices = next

	rs := doc.SOARules
	if rs.Version != "" {
		e.version = rs.Version
	}
	if rs.Technology != "" {
		e.technology = rs.Technology
	}
	if rs.GlobalConfig != nil {
		e.globalConfig = rs.GlobalConfig.clone()
		if rs.Version == "" && e.globalConfig.Version != "" {
			e.version = e.globalConfig.Version
		}
		if rs.Technology == "" && e.globalConfig.Technology != "" {
			e.technology = e.globalConfig.Technology
		}
	}

	e.log.Info("rules loaded",
		zap.Int("devices", len(devices)),
		zap.Int("total_devices", len(e.devices)),
		zap.String("version", e.version))
	return nil
}

// Document returns the wire form of the registry.
func (e *Engine) Document() *Document {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rs := &RuleSet{
		Version:    e.version,
		Technology: e.technology,
		Devices:    make(map[string]DeviceDoc, len(e.devices)),
	}
	rs.GlobalConfig = e.globalConfig.clone()
	for key, d := range e.devices {
		rs.Devices[key] = deviceDoc(d)
	}
	return &Document{SOARules: rs}
}

func (e *Engine) ExportJSON() ([]byte, error) {
	return e.Export(FormatJSON)
}

func (e *Engine) ExportYAML() ([]byte, error) {
	return e.Export(FormatYAML)
}

func (e *Engine) ExportMsgpack() ([]byte, error) {
	return e.Export(FormatMsgpack)
}

// Export encodes the registry in the given format.
func (e *Engine) Export(format Format) ([]byte, error) {
	return Encode(e.Document(), format)
}

// Device returns the rule set registered under key.
func (e *Engine) Device(key string) (*soa.Device, error) {
	e.mu.RLock()
	d, ok := e.devices[key]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device %s: %w", key, soa.ErrUnknownDevice)
	}
	return d, nil
}

// Keys returns the registered device keys in sorted order.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.devices))
	for k := range e.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.devices)
}

func (e *Engine) Info() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info := Info{
		Version:     e.version,
		Technology:  e.technology,
		DeviceCount: len(e.devices),
		Strict:      e.strict,
	}
	info.GlobalConfig = e.globalConfig.clone()
	for _, d := range e.devices {
		info.ParameterCount += d.Len()
	}
	return info
}

// Decode parses a rule document without validating it.
func Decode(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		err = dec.Decode(&doc)
	default:
		return nil, fmt.Errorf("unsupported rules format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", soa.ErrMalformedDocument, format, err)
	}
	return &doc, nil
}

// Encode writes doc in the given format. JSON is indented for readability.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		enc.SetSortMapKeys(true)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported rules format %q", format)
	}
}
