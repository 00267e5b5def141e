package scenario

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed scenario.cue
var schemaCUE string

// Vetter validates scenario documents against the embedded CUE schema.
// Build one and reuse it across files; the schema compiles once.
type Vetter struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewVetter compiles the embedded schema.
func NewVetter() (*Vetter, error) {
	ctx := cuecontext.New()
	compiled := ctx.CompileString(schemaCUE, cue.Filename("scenario.cue"))
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("compiling scenario schema: %w", err)
	}
	schema := compiled.LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("looking up #Scenario: %w", err)
	}
	return &Vetter{ctx: ctx, schema: schema}, nil
}

// Vet checks one scenario document against the schema. The path is used
// for error positions only.
func (v *Vetter) Vet(path string, data []byte) error {
	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	doc := v.ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building YAML document: %w", err)
	}
	unified := v.schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}

// Vet compiles the schema and checks a single document. Callers vetting
// many files should build a Vetter once instead.
func Vet(path string, data []byte) error {
	vetter, err := NewVetter()
	if err != nil {
		return err
	}
	return vetter.Vet(path, data)
}
