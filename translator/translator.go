// Package translator converts WebGL2 shader sources to the dialect of the
// running GL context and remembers every translation.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	gst "github.com/richinsley/goshadertranslator"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
	"github.com/richinsley/mapfx/shader"
)

// Result is one translated stage. Uniforms maps source uniform names to the
// names in Code.
type Result struct {
	Code     string
	Uniforms map[string]string
}

// Translator is safe for concurrent use.
type Translator struct {
	gst  *gst.ShaderTranslator
	gles bool

	mu    sync.Mutex
	cache map[uint64]*Result
}

// New starts a translator emitting GLSL 4.10, or ESSL when gles is set.
func New(ctx context.Context, gles bool) (*Translator, error) {
	st, err := gst.NewShaderTranslator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start shader translator: %w", err)
	}
	return &Translator{gst: st, gles: gles, cache: make(map[uint64]*Result)}, nil
}

var (
	defaultOnce sync.Once
	defaultT    *Translator
	defaultErr  error
)

// GetTranslator returns the process-wide desktop GL translator.
func GetTranslator() (*Translator, error) {
	defaultOnce.Do(func() {
		defaultT, defaultErr = New(context.Background(), false)
	})
	return defaultT, defaultErr
}

func cacheKey(stage gpu.ShaderStage, source string) uint64 {
	d := xxhash.New()
	d.WriteString(stage.String())
	d.Write([]byte{0})
	d.WriteString(source)
	return d.Sum64()
}

// Translate converts one WebGL2 stage.
func (t *Translator) Translate(source string, stage gpu.ShaderStage) (*Result, error) {
	key := cacheKey(stage, source)
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.cache[key]; ok {
		return r, nil
	}

	outputFormat := gst.OutputFormatGLSL410
	if t.gles {
		outputFormat = gst.OutputFormatESSL
	}
	out, err := t.gst.TranslateShader(source, stage.String(), gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return nil, fmt.Errorf("%s shader translation failed: %w", stage, err)
	}

	r := &Result{Code: out.Code, Uniforms: make(map[string]string, len(out.Variables))}
	for name, v := range out.Variables {
		r.Uniforms[name] = v.MappedName
	}
	t.cache[key] = r
	logger.Logger().Debug("shader translated", "stage", stage.String(), "uniforms", len(r.Uniforms))
	return r, nil
}

// TranslateProgram converts both stages and merges their uniform names.
func (t *Translator) TranslateProgram(vertex, fragment string) (string, string, map[string]string, error) {
	vs, err := t.Translate(vertex, gpu.VertexStage)
	if err != nil {
		return "", "", nil, err
	}
	fs, err := t.Translate(fragment, gpu.FragmentStage)
	if err != nil {
		return "", "", nil, err
	}
	names := make(map[string]string, len(vs.Uniforms)+len(fs.Uniforms))
	for k, v := range vs.Uniforms {
		names[k] = v
	}
	for k, v := range fs.Uniforms {
		names[k] = v
	}
	return vs.Code, fs.Code, names, nil
}

// Len returns the number of memoized translations.
func (t *Translator) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cache)
}

// Passthrough rewrites only the version line. It serves contexts where the
// translator cannot start; uniform names are unchanged.
type Passthrough struct{}

func (Passthrough) TranslateProgram(vertex, fragment string) (string, string, map[string]string, error) {
	return shader.Desktop(vertex), shader.Desktop(fragment), nil, nil
}
