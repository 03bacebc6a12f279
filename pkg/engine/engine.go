// Package engine provides the Lisp scripting engine for rollgrid.
// It wraps zygomys in a sandboxed environment and runs scripts against a
// fresh rolling-grid session.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/rollgrid/pkg/config"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/monitoring"
	"github.com/chazu/rollgrid/pkg/session"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
}

// Result is what a script leaves behind: the final surface and the state
// of the session that produced it.
type Result struct {
	Mesh   *kernel.Mesh
	Report *session.Report
}

// EvalResult bundles the full output of an evaluation for use by callers
// that want errors and warnings in one value.
type EvalResult struct {
	Result   *Result
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for rollgrid scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment and a fresh session for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	cfg     *config.Config
	opts    []session.Option
	timeout time.Duration
}

// NewEngine creates an Engine whose sessions are built from cfg. A nil cfg
// uses config.Default.
func NewEngine(cfg *config.Config, opts ...session.Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return &Engine{cfg: cfg, opts: opts, timeout: timeout}
}

// Timeout returns the evaluation time limit.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Evaluate runs Lisp source against a new session and returns the mesh and
// report it leaves behind.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error
//   - On fatal failure (timeout, panic, bad config): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res, evalErrs, err := e.evaluate(source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
}

// EvaluateAll is Evaluate with the session warnings folded into an
// EvalResult. Fatal errors are reported as a single EvalError.
func (e *Engine) EvaluateAll(source string) EvalResult {
	res, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return EvalResult{Errors: []EvalError{{Message: err.Error()}}}
	}
	out := EvalResult{Result: res, Errors: evalErrs}
	if res != nil && res.Report != nil {
		for _, w := range res.Report.Warnings {
			out.Warnings = append(out.Warnings, EvalWarning{Message: w})
		}
	}
	return out
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Result, []EvalError, error) {
	sess, err := session.New(e.cfg, e.opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	defer sess.Close()

	// Empty source is a valid program that leaves an empty window.
	if strings.TrimSpace(source) == "" {
		return finish(sess), nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls;
	// persistence goes through the registered builtins only.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, sess)

	err = env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	return finish(sess), nil, nil
}

// finish extracts the final surface and snapshots the session report.
func finish(sess *session.Session) *Result {
	m := sess.Mesh()
	r := sess.Report()
	monitoring.Debugf("[engine] script done: %d active blocks, %d triangles", r.ActiveBlocks, m.TriangleCount())
	return &Result{Mesh: m, Report: r}
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}

	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
