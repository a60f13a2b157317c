package container

import (
	"context"
	"path"
	"strings"

	"github.com/conneroisu/jitserve/internal/errors"
	"github.com/evanw/esbuild/pkg/api"
)

// TranspileOptions configures the esbuild transpile plugin.
type TranspileOptions struct {
	Sourcemap bool
	// JSXImportSource switches JSX to the automatic runtime of the given
	// package ("preact", "react"). Empty keeps classic createElement calls.
	JSXImportSource string
}

// Transpile strips types and compiles JSX with esbuild. Plain JavaScript
// modules are returned unchanged.
type Transpile struct {
	options TranspileOptions
}

// NewTranspile creates the transpile plugin.
func NewTranspile(options TranspileOptions) *Transpile {
	return &Transpile{options: options}
}

func (t *Transpile) Name() string {
	return "esbuild"
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".cts": api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
}

// Transform compiles TypeScript and JSX modules to ES modules.
func (t *Transpile) Transform(ctx context.Context, code, id string) (string, error) {
	loader, ok := loaders[strings.ToLower(path.Ext(id))]
	if !ok {
		return code, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	options := api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatESModule,
		Target:     api.ESNext,
		Sourcefile: "/" + id,
		Charset:    api.CharsetUTF8,
	}
	if t.options.Sourcemap {
		options.Sourcemap = api.SourceMapInline
	}
	if t.options.JSXImportSource != "" {
		options.JSX = api.JSXAutomatic
		options.JSXImportSource = t.options.JSXImportSource
	}

	result := api.Transform(code, options)
	if len(result.Errors) > 0 {
		return "", transformError(id, result.Errors)
	}
	return string(result.Code), nil
}

func transformError(id string, messages []api.Message) *errors.Error {
	first := messages[0]
	e := errors.NewTransformError(errors.ErrCodeTransformFailed, first.Text, nil).
		WithModule(id).
		WithContext("errors", len(messages))
	if loc := first.Location; loc != nil {
		e = e.WithLocation(id, loc.Line, loc.Column+1).
			WithContext("line_text", loc.LineText)
	}
	return e
}
