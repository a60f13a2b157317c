package container

import (
	"encoding/json"
	"os"
	"strings"
)

// PublicEnvPrefix marks environment variables exposed to modules through
// import.meta.env.
const PublicEnvPrefix = "JITSERVE_PUBLIC_"

// Env resolves import.meta.env to a development-mode object literal.
type Env struct {
	mode   string
	values map[string]interface{}
}

// NewEnv captures the public environment at construction.
func NewEnv(mode string) *Env {
	if mode == "" {
		mode = "development"
	}
	values := map[string]interface{}{
		"MODE": mode,
		"DEV":  mode != "production",
		"PROD": mode == "production",
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, PublicEnvPrefix) {
			values[key] = value
		}
	}
	return &Env{mode: mode, values: values}
}

func (e *Env) Name() string {
	return "env"
}

// ResolveImportMeta answers import.meta.env.
func (e *Env) ResolveImportMeta(prop string) (string, bool) {
	if prop != "env" {
		return "", false
	}
	data, err := json.Marshal(e.values)
	if err != nil {
		return "", false
	}
	return string(data), true
}
