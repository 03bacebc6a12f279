package engine

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel/sdfx"
	"github.com/chazu/rollgrid/pkg/session"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites script source before zygomys sees it:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords never
//     collide with user variables.
//  2. kebab-case identifiers become snake_case (move-to -> move_to), since
//     zygomys reads a hyphen as subtraction.
//  3. ; line comments become // comments.
//
// String literals are copied untouched.
func preprocessSource(source string) string {
	out := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			j := i + 1
			for j < len(b) && b[j] != '"' {
				if b[j] == '\\' && j+1 < len(b) {
					j++
				}
				j++
			}
			if j < len(b) {
				j++
			}
			out = append(out, b[i:j]...)
			i = j
			continue

		case b[i] == '`':
			j := i + 1
			for j < len(b) && b[j] != '`' {
				j++
			}
			if j < len(b) {
				j++
			}
			out = append(out, b[i:j]...)
			i = j
			continue

		case b[i] == ';':
			out = append(out, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				out = append(out, b[i])
				i++
			}
			continue

		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			out = append(out, ':', '=')
			i += 2
			continue

		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out = append(out, '"')
			out = append(out, kwPrefix...)
			out = append(out, b[i+1:j]...)
			out = append(out, '"')
			i = j
			continue

		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out = append(out, '_')
			i++
			continue
		}
		out = append(out, b[i])
		i++
	}
	return string(out)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Go values carried through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point or extent.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpShape wraps an SDF3 scene shape that can be fused or painted.
type sexpShape struct {
	kind  string
	shape sdf.SDF3
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	bb := s.shape.BoundingBox()
	return fmt.Sprintf("#<%s %v..%v>", s.kind, bb.Min, bb.Max)
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// lookup returns the keyword argument name, or the positional argument at
// pos when the keyword is absent. pos < 0 disables the fallback.
func (a kwArgs) lookup(name string, pos int) (zygo.Sexp, bool) {
	if v, ok := a.kw[name]; ok {
		return v, true
	}
	if pos >= 0 && pos < len(a.positional) {
		return a.positional[pos], true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts a whole number.
func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toShape(s zygo.Sexp) (sdf.SDF3, error) {
	if v, ok := s.(*sexpShape); ok {
		return v.shape, nil
	}
	return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// toShift reads a block shift either from a single vec3 argument or from
// :x :y :z keywords. Missing axes are zero.
func toShift(pa kwArgs) (grid.Index3, error) {
	if len(pa.positional) == 1 {
		v, err := toVec3(pa.positional[0])
		if err != nil {
			return grid.Index3{}, err
		}
		var shift grid.Index3
		for a, c := range []float64{v.X, v.Y, v.Z} {
			if c != math.Trunc(c) {
				return grid.Index3{}, fmt.Errorf("%c: expected whole blocks, got %g", "xyz"[a], c)
			}
			shift = shift.WithAxis(a, int(c))
		}
		return shift, nil
	}
	var shift grid.Index3
	for a, key := range []string{"x", "y", "z"} {
		v, ok := pa.kw[key]
		if !ok {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return grid.Index3{}, fmt.Errorf("%s: %w", key, err)
		}
		shift = shift.WithAxis(a, n)
	}
	return shift, nil
}

func intSexp(n int) zygo.Sexp { return &zygo.SexpInt{Val: int64(n)} }

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the rollgrid builtins into a zygomys
// environment. They all act on sess.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, sess *session.Session) {
	savePath := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(sess.Config().SaveDir, p)
	}

	// (vec3 x y z)
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// (sphere :radius 1 :center (vec3 0 0 0))
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		rs, ok := pa.lookup("radius", 0)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("sphere: radius is required")
		}
		r, err := toFloat64(rs)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		var c v3.Vec
		if cs, ok := pa.lookup("center", 1); ok {
			if c, err = toVec3(cs); err != nil {
				return zygo.SexpNull, fmt.Errorf("sphere: center: %w", err)
			}
		}
		s, err := sdfx.Sphere(c, r)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: %w", err)
		}
		return &sexpShape{kind: "sphere", shape: s}, nil
	})

	// (box :size (vec3 1 1 1) :center (vec3 0 0 0))
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		ss, ok := pa.lookup("size", 0)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("box: size is required")
		}
		size, err := toVec3(ss)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		var c v3.Vec
		if cs, ok := pa.lookup("center", 1); ok {
			if c, err = toVec3(cs); err != nil {
				return zygo.SexpNull, fmt.Errorf("box: center: %w", err)
			}
		}
		s, err := sdfx.Box(c, size)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return &sexpShape{kind: "box", shape: s}, nil
	})

	// (union a b ...)
	env.AddFunction("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("union requires at least one shape")
		}
		shapes := make([]sdf.SDF3, 0, len(args))
		for i, a := range args {
			s, err := toShape(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("union: shape %d: %w", i, err)
			}
			shapes = append(shapes, s)
		}
		return &sexpShape{kind: "union", shape: sdf.Union3D(shapes...)}, nil
	})

	// (difference a b)
	env.AddFunction("difference", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("difference requires exactly 2 shapes, got %d", len(args))
		}
		a, err := toShape(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("difference: %w", err)
		}
		b, err := toShape(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("difference: %w", err)
		}
		return &sexpShape{kind: "difference", shape: sdf.Difference3D(a, b)}, nil
	})

	// (translate shape (vec3 dx dy dz))
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("translate requires a shape and a vec3")
		}
		s, err := toShape(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		d, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		return &sexpShape{kind: "translate", shape: sdf.Transform3D(s, sdf.Translate3d(d))}, nil
	})

	// (fuse shape) -> voxels written
	env.AddFunction("fuse", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("fuse requires exactly 1 shape, got %d", len(args))
		}
		s, err := toShape(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("fuse: %w", err)
		}
		n, err := sess.Fuse(s)
		if err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(n), nil
	})

	// (paint shape :intensity 0.8) -> voxels coloured
	env.AddFunction("paint", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("paint requires exactly 1 shape")
		}
		s, err := toShape(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("paint: %w", err)
		}
		intensity := 1.0
		if v, ok := pa.kw["intensity"]; ok {
			if intensity, err = toFloat64(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("paint: intensity: %w", err)
			}
		}
		return intSexp(sess.Paint(s, float32(intensity))), nil
	})

	// (roll :x 1 :y 0 :z -1) or (roll (vec3 1 0 -1)) -> blocks evicted
	env.AddFunction("roll", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		shift, err := toShift(parseArgs(args))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("roll: %w", err)
		}
		rep, err := sess.Roll(shift)
		if err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(rep.Evicted), nil
	})

	// (move-to (vec3 x y z)) -> blocks evicted
	env.AddFunction("move_to", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("move-to requires exactly 1 position")
		}
		p, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("move-to: %w", err)
		}
		rep, err := sess.MoveTo(p)
		if err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(rep.Evicted), nil
	})

	// (mesh) -> triangle count
	env.AddFunction("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return intSexp(sess.Mesh().TriangleCount()), nil
	})

	// (export "scene" :format "stl") -> triangle count
	env.AddFunction("export", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		ps, ok := pa.lookup("path", 0)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("export: path is required")
		}
		p, err := toString(ps)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("export: path: %w", err)
		}
		format := ""
		if v, ok := pa.kw["format"]; ok {
			if format, err = toKeywordString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("export: format: %w", err)
			}
		}
		m, err := sess.Export(savePath(p), format)
		if err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(m.TriangleCount()), nil
	})

	// (save "snapshot") -> blocks written
	env.AddFunction("save", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		prefix := sess.Config().SavePrefix
		if len(args) > 0 {
			p, err := toString(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("save: prefix: %w", err)
			}
			prefix = p
		}
		n, err := sess.Save(prefix)
		if err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(n), nil
	})

	// (load "snapshot") -> active blocks after loading
	env.AddFunction("load", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("load requires exactly 1 prefix")
		}
		prefix, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("load: prefix: %w", err)
		}
		if err := sess.Load(prefix); err != nil {
			return zygo.SexpNull, err
		}
		return intSexp(sess.Window().ActiveCount()), nil
	})

	// (active) -> resident block count
	env.AddFunction("active", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return intSexp(sess.Window().ActiveCount()), nil
	})

	// (bbox) -> (min max)
	env.AddFunction("bbox", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		bb := sess.Window().BBox
		return zygo.MakeList([]zygo.Sexp{&sexpVec3{vec: bb.Min}, &sexpVec3{vec: bb.Max}}), nil
	})
}
