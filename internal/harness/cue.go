package harness

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed scenario_schema.cue
var scenarioSchema string

// cueToJSON evaluates a .cue scenario, closes it over #Scenario and
// exports it as JSON for ParseScenario.
func cueToJSON(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse CUE: %s", errors.Details(err, nil))
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s: scenario does not match schema: %s", path, errors.Details(err, nil))
	}

	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%s: export scenario: %w", path, err)
	}
	return out, nil
}
