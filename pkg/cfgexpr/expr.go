// Package cfgexpr parses and evaluates the platform guards Cargo attaches to
// dependencies: cfg(...) expressions and bare target triples.
//
// Evaluation is three-valued. A predicate over a key this package does not
// know (target_feature, debug_assertions, custom --cfg flags) is unknown, and
// unknown propagates through all/any/not the way Kleene logic does. Callers
// receive ErrUnresolved for an expression whose value stays unknown.
package cfgexpr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyntax is returned by [Parse] for malformed expressions.
	ErrSyntax = errors.New("invalid cfg expression")

	// ErrUnresolved is returned by [Guard.Eval] when the guard depends on a
	// key that cannot be evaluated for a target.
	ErrUnresolved = errors.New("unresolved cfg expression")
)

// Op is the kind of an expression node.
type Op int

const (
	OpName  Op = iota // unix
	OpValue           // target_os = "linux"
	OpAll             // all(...)
	OpAny             // any(...)
	OpNot             // not(...)
)

// Expr is a parsed cfg expression.
type Expr struct {
	Op    Op
	Key   string  // OpName, OpValue
	Value string  // OpValue
	Args  []*Expr // OpAll, OpAny, OpNot
}

func (e *Expr) String() string {
	switch e.Op {
	case OpName:
		return e.Key
	case OpValue:
		return fmt.Sprintf("%s = %q", e.Key, e.Value)
	default:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.String()
		}
		name := map[Op]string{OpAll: "all", OpAny: "any", OpNot: "not"}[e.Op]
		return name + "(" + strings.Join(args, ", ") + ")"
	}
}

// Guard is a dependency platform guard: either a cfg expression or a target
// triple.
type Guard struct {
	Raw    string
	Triple string // set for bare triples
	Expr   *Expr  // set for cfg(...)
}

func (g *Guard) String() string { return g.Raw }

// Parse parses a platform guard as it appears in a dependency's "target"
// field.
func Parse(s string) (*Guard, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrSyntax)
	}
	if !strings.HasPrefix(raw, "cfg(") {
		if strings.ContainsAny(raw, "()=,\" ") {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
		return &Guard{Raw: raw, Triple: raw}, nil
	}
	if !strings.HasSuffix(raw, ")") {
		return nil, fmt.Errorf("%w: %q: missing closing parenthesis", ErrSyntax, raw)
	}

	p := &parser{src: raw[len("cfg(") : len(raw)-1]}
	expr, err := p.expr()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, raw, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: %q: unexpected %q", ErrSyntax, raw, p.src[p.pos:])
	}
	return &Guard{Raw: raw, Expr: expr}, nil
}

// Eval reports whether the guard matches t. When the value cannot be decided
// Eval returns true together with ErrUnresolved, so callers that ignore the
// error keep the dependency.
func (g *Guard) Eval(t *Target) (bool, error) {
	if g.Triple != "" {
		return g.Triple == t.Triple, nil
	}
	switch eval(g.Expr, t) {
	case vTrue:
		return true, nil
	case vFalse:
		return false, nil
	default:
		return true, fmt.Errorf("%w: %s for %s", ErrUnresolved, g.Raw, t.Triple)
	}
}

type value int

const (
	vFalse value = iota
	vTrue
	vUnknown
)

func boolValue(b bool) value {
	if b {
		return vTrue
	}
	return vFalse
}

func eval(e *Expr, t *Target) value {
	switch e.Op {
	case OpName:
		switch e.Key {
		case "unix", "windows":
			return boolValue(t.HasFamily(e.Key))
		default:
			return vUnknown
		}
	case OpValue:
		v, ok := t.lookup(e.Key, e.Value)
		if !ok {
			return vUnknown
		}
		return boolValue(v)
	case OpAll:
		result := vTrue
		for _, a := range e.Args {
			switch eval(a, t) {
			case vFalse:
				return vFalse
			case vUnknown:
				result = vUnknown
			}
		}
		return result
	case OpAny:
		result := vFalse
		for _, a := range e.Args {
			switch eval(a, t) {
			case vTrue:
				return vTrue
			case vUnknown:
				result = vUnknown
			}
		}
		return result
	case OpNot:
		switch eval(e.Args[0], t) {
		case vTrue:
			return vFalse
		case vFalse:
			return vTrue
		default:
			return vUnknown
		}
	}
	return vUnknown
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || p.pos > start && c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at offset %d", start)
	}
	return p.src[start:p.pos], nil
}

func (p *parser) str() (string, error) {
	if p.peek() != '"' {
		return "", fmt.Errorf("expected string at offset %d", p.pos)
	}
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], '"')
	if end < 0 {
		return "", errors.New("unterminated string")
	}
	s := p.src[p.pos : p.pos+end]
	p.pos += end + 1
	return s, nil
}

func (p *parser) expr() (*Expr, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	switch p.peek() {
	case '=':
		p.pos++
		v, err := p.str()
		if err != nil {
			return nil, err
		}
		return &Expr{Op: OpValue, Key: name, Value: v}, nil
	case '(':
		p.pos++
		var op Op
		switch name {
		case "all":
			op = OpAll
		case "any":
			op = OpAny
		case "not":
			op = OpNot
		default:
			return nil, fmt.Errorf("unknown operator %q", name)
		}
		args, err := p.list()
		if err != nil {
			return nil, err
		}
		if op == OpNot && len(args) != 1 {
			return nil, fmt.Errorf("not() takes exactly one argument, got %d", len(args))
		}
		return &Expr{Op: op, Args: args}, nil
	default:
		return &Expr{Op: OpName, Key: name}, nil
	}
}

func (p *parser) list() ([]*Expr, error) {
	var args []*Expr
	for {
		if p.peek() == ')' {
			p.pos++
			return args, nil
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)

		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' at offset %d", p.pos)
		}
	}
}
