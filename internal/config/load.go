package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Format is a config file format.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Load error codes, shared with the CLI's error output.
const (
	ErrCodeParse       = "E004" // File could not be decoded
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeSchema      = "E006" // Schema unification failed
	ErrCodeUnsupported = "E008" // Unknown file extension
)

// LoadError reports a config that could not be read or failed the schema.
// Semantic failures are engine.ConfigurationError instead.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FormatFromPath picks a format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported config extension %q", filepath.Ext(path))}
	}
}

// Load reads, decodes and validates a config file.
func Load(path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return parse(data, format, path)
}

// Parse decodes and validates config bytes in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	return parse(data, format, "config."+string(format))
}

func parse(data []byte, format Format, name string) (*Config, error) {
	ctx := cuecontext.New()
	schema, err := schemaDef(ctx)
	if err != nil {
		return nil, err
	}

	var doc cue.Value
	switch format {
	case FormatCUE:
		doc, err = compileCUE(ctx, data, name)
	case FormatYAML:
		doc, err = compileYAML(ctx, data, name)
	case FormatTOML:
		doc, err = compileTOML(ctx, data, name)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := decodeWithSchema(schema, doc, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func schemaDef(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Config")), nil
}

// decodeWithSchema unifies a document with #Config and decodes the result.
// The schema fills every field the document leaves out, so an explicit zero
// in the document is kept as written.
func decodeWithSchema(schema, doc cue.Value, out *Config) error {
	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cueLoadError(ErrCodeSchema, err)
	}
	if err := unified.Decode(out); err != nil {
		return cueLoadError(ErrCodeSchema, err)
	}
	return nil
}

func compileCUE(ctx *cue.Context, data []byte, name string) (cue.Value, error) {
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return cue.Value{}, cueLoadError(ErrCodeParse, err)
	}
	return v, nil
}

// compileYAML rejects unknown keys against Config, then hands the raw
// document (only the keys actually written) to CUE.
func compileYAML(ctx *cue.Context, data []byte, name string) (cue.Value, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&Config{}); err != nil {
		if errors.Is(err, io.EOF) {
			return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: "empty config"}
		}
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
	}
	return compileDocument(ctx, raw, name)
}

// compileTOML is compileYAML for TOML.
func compileTOML(ctx *cue.Context, data []byte, name string) (cue.Value, error) {
	md, err := toml.Decode(string(data), &Config{})
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("unknown keys: %s", strings.Join(keys, ", "))}
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
	}
	return compileDocument(ctx, raw, name)
}

func compileDocument(ctx *cue.Context, raw map[string]any, name string) (cue.Value, error) {
	dropNulls(raw)
	data, err := json.Marshal(raw)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
	}
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return cue.Value{}, cueLoadError(ErrCodeParse, err)
	}
	return v, nil
}

// dropNulls removes keys written without a value ("residual:" in YAML) so
// the schema treats them as unset.
func dropNulls(m map[string]any) {
	for k, v := range m {
		switch v := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			dropNulls(v)
		}
	}
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if pos := cueerrors.Positions(err); len(pos) > 0 {
		le.Pos = pos[0]
	}
	le.Message = strings.TrimSpace(le.Message)
	return le
}
