// Package config loads an optional config.yaml overlay that supplies
// process defaults beneath environment variables, grounded on
// kraklabs-mie's .mie/config.yaml pattern (file loaded first, env vars
// applied on top via applyEnvOverrides). Unlike that teacher, a missing
// overlay file here is not an error: most deployments configure purely
// through the environment, and the overlay exists for operators who'd
// rather check a file into a deploy repo than manage a long env list.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

// Overlay is the subset of process configuration a config.yaml file may
// supply. Every field is optional; its zero value means "not set here,"
// leaving the caller's own hardcoded default or env var in effect.
type Overlay struct {
	Port       string `yaml:"port"`
	SqlitePath string `yaml:"sqlite_path"`
	VectorDim  int    `yaml:"vector_dim"`
	LLMBackend string `yaml:"llm_backend"`
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMModel   string `yaml:"llm_model"`
	QdrantURL  string `yaml:"qdrant_url"`
}

// Load reads the overlay at path. An empty path falls back to the
// CONFIG_PATH environment variable, then to "config.yaml" in the working
// directory. A file that does not exist yields a zero Overlay rather than
// an error, since the overlay is always optional.
func Load(path string) (Overlay, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Overlay{}, nil
		}
		return Overlay{}, err
	}

	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overlay{}, err
	}
	return o, nil
}
