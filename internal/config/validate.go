// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var embeddedSchema []byte

// ValidateWithCue validates YAML config bytes against the #Simulation definition of a
// CUE schema file. An empty cueFile uses the embedded schema.
func ValidateWithCue(configFile string, yamlBytes []byte, cueFile string) error {
	ctx := cuecontext.New()

	f, err := yaml.Extract(configFile, yamlBytes)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(f)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot build YAML config: %w", configVal.Err())
	}

	schemaBytes := embeddedSchema
	if cueFile != "" {
		schemaBytes, err = os.ReadFile(cueFile)
		if err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	schemaVal := ctx.CompileBytes(schemaBytes)
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}

	def := schemaVal.LookupPath(cue.ParsePath("#Simulation"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Simulation definition")
	}

	final := def.Unify(configVal)
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
