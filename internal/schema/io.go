package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

//go:embed schema.cue
var definitionSource string

// document is the on-disk form. Rates are decimal strings; numbers are
// accepted on read.
type document struct {
	CurrencyName  string                 `json:"currency_name"`
	BaseUnit      string                 `json:"base_unit"`
	Conversions   map[string]json.Number `json:"conversions"`
	DisplayFormat Format                 `json:"display_format,omitempty"`
}

// MarshalJSON writes rates as strings so they round-trip exactly.
func (s *Schema) MarshalJSON() ([]byte, error) {
	doc := struct {
		CurrencyName  string            `json:"currency_name"`
		BaseUnit      string            `json:"base_unit"`
		Conversions   map[string]string `json:"conversions"`
		DisplayFormat Format            `json:"display_format"`
	}{
		CurrencyName:  s.CurrencyName,
		BaseUnit:      s.BaseUnit,
		Conversions:   make(map[string]string, len(s.Conversions)),
		DisplayFormat: s.DisplayFormat,
	}
	for unit, rate := range s.Conversions {
		doc.Conversions[unit] = num.String(rate)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes without validating. Use Decode for untrusted input.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "malformed world schema")
	}
	out := Schema{
		CurrencyName:  doc.CurrencyName,
		BaseUnit:      doc.BaseUnit,
		Conversions:   make(map[string]*apd.Decimal, len(doc.Conversions)),
		DisplayFormat: doc.DisplayFormat,
	}
	if out.DisplayFormat == "" {
		out.DisplayFormat = FormatStandard
	}
	for unit, raw := range doc.Conversions {
		rate, err := num.Parse(raw.String())
		if err != nil {
			return errs.Wrap(errs.CodeConfiguration, err, "conversion rate for %q", unit)
		}
		out.Conversions[unit] = rate
	}
	*s = out
	return nil
}

// cueMu serializes use of the shared CUE context, which is not safe for
// concurrent use.
var (
	cueMu   sync.Mutex
	cueOnce sync.Once
	cueCtx  *cue.Context
	cueDef  cue.Value
	cueErr  error
)

func definition() (*cue.Context, cue.Value, error) {
	cueOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(definitionSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			cueErr = err
			return
		}
		cueDef = v.LookupPath(cue.ParsePath("#WorldSchema"))
		cueErr = cueDef.Err()
	})
	return cueCtx, cueDef, cueErr
}

// CheckStructure validates a raw document against the embedded CUE
// definition: required fields present and non-empty, rates positive
// decimals, display format recognized.
func CheckStructure(data []byte, filename string) error {
	cueMu.Lock()
	defer cueMu.Unlock()
	ctx, def, err := definition()
	if err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "world schema definition")
	}
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "parse %s", filename)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "%s does not match #WorldSchema", filename)
	}
	return nil
}

// Decode parses and fully validates a world-schema document.
func Decode(data []byte) (*Schema, error) {
	return decode(data, "schema.json")
}

// Load reads and validates a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, err, "read world schema")
	}
	return decode(data, filepath.Base(path))
}

func decode(data []byte, filename string) (*Schema, error) {
	if err := CheckStructure(data, filename); err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes s as indented JSON, creating parent directories.
func (s *Schema) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "encode world schema")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.CodePersistence, err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "write %s", path)
	}
	return nil
}

// LoadOrDefault loads path, falling back to the default preset when path is
// empty, missing or invalid. Invalid files are logged.
func LoadOrDefault(path string, logger *slog.Logger) *Schema {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return Default()
	}
	s, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to load world schema, using classic fantasy preset",
				"path", path, "error", err)
		}
		return Default()
	}
	return s
}
