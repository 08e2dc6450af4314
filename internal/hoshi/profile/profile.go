// Package profile loads the bot profile: system prompt, model names and
// limits. A profile is a YAML document validated against an embedded JSON
// schema before it is decoded; unset fields fall back to the built-in
// default profile.
package profile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// APIVersion is the only accepted profile apiVersion.
const APIVersion = "hoshi/v1"

//go:embed default.yaml
var defaultYAML []byte

//go:embed profile.schema.json
var schemaJSON string

const schemaURL = "profile.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Model selects the backend models.
type Model struct {
	Chat        string  `yaml:"chat"`
	Image       string  `yaml:"image"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// Limits bounds history, throttling, payloads and backend calls.
type Limits struct {
	HistoryTurns     int      `yaml:"historyTurns"`
	ChatInterval     Duration `yaml:"chatInterval"`
	CommandInterval  Duration `yaml:"commandInterval"`
	FeedbackInterval Duration `yaml:"feedbackInterval"`
	ImagineInterval  Duration `yaml:"imagineInterval"`
	MaxImageBytes    int64    `yaml:"maxImageBytes"`
	ResponseTimeout  Duration `yaml:"responseTimeout"`
	ImagineTimeout   Duration `yaml:"imagineTimeout"`
}

// Profile is a decoded bot profile.
type Profile struct {
	APIVersion   string  `yaml:"apiVersion"`
	Name         string  `yaml:"name"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Model        Model   `yaml:"model"`
	Limits       Limits  `yaml:"limits"`
	Admins       []int64 `yaml:"admins"`
}

// Default returns the built-in profile.
func Default() *Profile {
	p, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("profile: built-in default is invalid: %v", err))
	}
	return p
}

// Load reads and parses the profile at path. An empty path yields Default().
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// Parse validates data against the profile schema and decodes it on top of
// the built-in default, so a profile only needs the fields it overrides.
func Parse(data []byte) (*Profile, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	p := Default()
	if err := decode(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks a YAML profile document against the JSON schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("profile is empty")
	}

	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}

	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func parse(data []byte) (*Profile, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var p Profile
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decode(data []byte, p *Profile) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load profile schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}
