package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	coreerrors "github.com/ruudy-sib/corepay/core/errors"
)

// Expression grammar (spec §4.2), exactly:
//
//	expr   ::= ternary
//	ternary::= compare ('?' expr ':' expr)?
//	compare::= additive ( (==|!=|<|<=|>|>=|startsWith|endsWith|contains) additive )*
//	additive ::= mul ( (+|-) mul )*
//	mul    ::= primary ( (*|/) primary )*
//	primary::= literal | ref | call | '(' expr ')'
//	ref    ::= '${' 'source' '.' FIELD '}'
//	call   ::= IDENT '(' (expr (',' expr)*)? ')'
//
// Evaluation is strict: refs outside ${source.…}, bad coercions and division
// by zero all produce errors rather than silently defaulting. A ref to a
// field absent from the source evaluates to null.

type tokenKind int

const (
	tEOF tokenKind = iota
	tNumber
	tString
	tIdent
	tRef
	tOp
	tLParen
	tRParen
	tComma
	tQuestion
	tColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(s string) *lexer { return &lexer{src: []rune(s)} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tEOF}, nil
	}
	ch := l.src[l.pos]

	switch {
	case ch == '$' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '{':
		return l.lexRef()
	case ch == '\'' || ch == '"':
		return l.lexString(ch)
	case isDigit(ch):
		return l.lexNumber()
	case ch == '(':
		l.pos++
		return token{kind: tLParen}, nil
	case ch == ')':
		l.pos++
		return token{kind: tRParen}, nil
	case ch == ',':
		l.pos++
		return token{kind: tComma}, nil
	case ch == '?':
		l.pos++
		return token{kind: tQuestion}, nil
	case ch == ':':
		l.pos++
		return token{kind: tColon}, nil
	case isIdentStart(ch):
		return l.lexIdentOrOp()
	default:
		return l.lexSymbolOp()
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n') {
		l.pos++
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }

func (l *lexer) lexRef() (token, error) {
	start := l.pos
	l.pos += 2 // skip "${"
	for l.pos < len(l.src) && l.src[l.pos] != '}' {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{}, fmt.Errorf("%w: unterminated ref starting at %d", coreerrors.ErrExpressionEval, start)
	}
	inner := string(l.src[start+2 : l.pos])
	l.pos++ // skip "}"
	return token{kind: tRef, text: inner}, nil
}

func (l *lexer) lexString(quote rune) (token, error) {
	l.pos++ // skip opening quote
	var b strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		b.WriteRune(l.src[l.pos])
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{}, fmt.Errorf("%w: unterminated string literal", coreerrors.ErrExpressionEval)
	}
	l.pos++ // skip closing quote
	return token{kind: tString, text: b.String()}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	s := string(l.src[start:l.pos])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return token{}, fmt.Errorf("%w: invalid number %q", coreerrors.ErrExpressionEval, s)
	}
	return token{kind: tNumber, num: v, text: s}, nil
}

func (l *lexer) lexIdentOrOp() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	s := string(l.src[start:l.pos])
	switch s {
	case "true":
		return token{kind: tIdent, text: "true"}, nil
	case "false":
		return token{kind: tIdent, text: "false"}, nil
	case "startsWith", "endsWith", "contains":
		return token{kind: tOp, text: s}, nil
	default:
		return token{kind: tIdent, text: s}, nil
	}
}

func (l *lexer) lexSymbolOp() (token, error) {
	two := ""
	if l.pos+1 < len(l.src) {
		two = string(l.src[l.pos : l.pos+2])
	}
	switch two {
	case "==", "!=", "<=", ">=":
		l.pos += 2
		return token{kind: tOp, text: two}, nil
	}
	ch := l.src[l.pos]
	switch ch {
	case '<', '>', '+', '-', '*', '/':
		l.pos++
		return token{kind: tOp, text: string(ch)}, nil
	default:
		return token{}, fmt.Errorf("%w: unexpected character %q at %d", coreerrors.ErrExpressionEval, ch, l.pos)
	}
}

// Parser

type parser struct {
	lx   *lexer
	cur  token
}

func newParser(s string) (*parser, error) {
	p := &parser{lx: newLexer(s)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// Node is a parsed expression AST node.
type Node interface {
	eval(env *evalEnv) (Value, error)
}

// ParseExpression parses a spec §4.2 expression into an AST.
func ParseExpression(s string) (Node, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tEOF {
		return nil, fmt.Errorf("%w: trailing input after expression", coreerrors.ErrExpressionEval)
	}
	return n, nil
}

func (p *parser) parseTernary() (Node, error) {
	cond, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tQuestion {
		if err := p.advance(); err != nil {
			return nil, err
		}
		thenN, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tColon {
			return nil, fmt.Errorf("%w: expected ':' in ternary", coreerrors.ErrExpressionEval)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseN, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &ternaryNode{cond: cond, then: thenN, els: elseN}, nil
	}
	return cond, nil
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "startsWith": true, "endsWith": true, "contains": true}

func (p *parser) parseCompare() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tOp && compareOps[p.cur.text] {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binopNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tOp && (p.cur.text == "+" || p.cur.text == "-") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &binopNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMul() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tOp && (p.cur.text == "*" || p.cur.text == "/") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &binopNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tNumber:
		v := p.cur.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{v: Value{Kind: KindNumber, Num: v}}, nil
	case tString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{v: Value{Kind: KindString, Str: s}}, nil
	case tRef:
		field := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &refNode{path: field}, nil
	case tIdent:
		if p.cur.text == "true" || p.cur.text == "false" {
			b := p.cur.text == "true"
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &literalNode{v: Value{Kind: KindBool, Bool: b}}, nil
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tLParen {
			return nil, fmt.Errorf("%w: unexpected identifier %q", coreerrors.ErrExpressionEval, name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var args []Node
		for p.cur.kind != tRParen {
			arg, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.kind == tComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.cur.kind != tRParen {
			return nil, fmt.Errorf("%w: expected ')' after call args", coreerrors.ErrExpressionEval)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &callNode{name: name, args: args}, nil
	case tLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tRParen {
			return nil, fmt.Errorf("%w: expected ')'", coreerrors.ErrExpressionEval)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token in expression", coreerrors.ErrExpressionEval)
	}
}

// ValueKind is the runtime type of an evaluated Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a dynamically-typed expression result.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// Interface returns the Go-native representation of v.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

func valueFromAny(a any) Value {
	switch t := a.(type) {
	case string:
		return Value{Kind: KindString, Str: t}
	case float64:
		return Value{Kind: KindNumber, Num: t}
	case int:
		return Value{Kind: KindNumber, Num: float64(t)}
	case int64:
		return Value{Kind: KindNumber, Num: float64(t)}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case nil:
		return Value{Kind: KindNull}
	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", t)}
	}
}

// evalEnv carries the source record and injected collaborators (clock, id
// generator) an expression may reference via ${source.FIELD} or call().
type evalEnv struct {
	source map[string]any
	clock  ClockFunc
	idgen  IDGenFunc
}

// ClockFunc returns the current time in RFC3339 form for now()/timestamp().
type ClockFunc func() string

// IDGenFunc generates ids for uuid()/seq() calls inside expressions.
type IDGenFunc func(kind string, args ...string) string

type literalNode struct{ v Value }

func (n *literalNode) eval(_ *evalEnv) (Value, error) { return n.v, nil }

type refNode struct{ path string }

func (n *refNode) eval(env *evalEnv) (Value, error) {
	parts := strings.SplitN(n.path, ".", 2)
	if len(parts) != 2 || parts[0] != "source" {
		return Value{}, fmt.Errorf("%w: unsupported ref ${%s}", coreerrors.ErrExpressionEval, n.path)
	}
	val, ok := lookupPath(env.source, parts[1])
	if !ok {
		return Value{Kind: KindNull}, nil
	}
	return valueFromAny(val), nil
}

func lookupPath(m map[string]any, path string) (any, bool) {
	segs := strings.Split(path, ".")
	var cur any = m
	for _, seg := range segs {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

type ternaryNode struct {
	cond, then, els Node
}

func (n *ternaryNode) eval(env *evalEnv) (Value, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return Value{}, err
	}
	if truthy(c) {
		return n.then.eval(env)
	}
	return n.els.eval(env)
}

func truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	default:
		return false
	}
}

type binopNode struct {
	op          string
	left, right Node
}

func (n *binopNode) eval(env *evalEnv) (Value, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return Value{}, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case "==":
		return Value{Kind: KindBool, Bool: valuesEqual(l, r)}, nil
	case "!=":
		return Value{Kind: KindBool, Bool: !valuesEqual(l, r)}, nil
	case "startsWith":
		return Value{Kind: KindBool, Bool: strings.HasPrefix(l.Str, r.Str)}, nil
	case "endsWith":
		return Value{Kind: KindBool, Bool: strings.HasSuffix(l.Str, r.Str)}, nil
	case "contains":
		return Value{Kind: KindBool, Bool: strings.Contains(l.Str, r.Str)}, nil
	case "+":
		if l.Kind == KindString || r.Kind == KindString {
			return Value{Kind: KindString, Str: toStr(l) + toStr(r)}, nil
		}
		ln, lerr := toNum(l)
		rn, rerr := toNum(r)
		if lerr != nil || rerr != nil {
			return Value{}, fmt.Errorf("%w: cannot add non-numeric, non-string operands", coreerrors.ErrExpressionEval)
		}
		return Value{Kind: KindNumber, Num: ln + rn}, nil
	case "-", "*", "/":
		ln, err := toNum(l)
		if err != nil {
			return Value{}, err
		}
		rn, err := toNum(r)
		if err != nil {
			return Value{}, err
		}
		switch n.op {
		case "-":
			return Value{Kind: KindNumber, Num: ln - rn}, nil
		case "*":
			return Value{Kind: KindNumber, Num: ln * rn}, nil
		case "/":
			if rn == 0 {
				return Value{}, fmt.Errorf("%w: division by zero", coreerrors.ErrExpressionEval)
			}
			return Value{Kind: KindNumber, Num: ln / rn}, nil
		}
	case "<", "<=", ">", ">=":
		ln, lerr := toNum(l)
		rn, rerr := toNum(r)
		if lerr == nil && rerr == nil {
			return Value{Kind: KindBool, Bool: compareNum(n.op, ln, rn)}, nil
		}
		return Value{Kind: KindBool, Bool: compareStr(n.op, toStr(l), toStr(r))}, nil
	}
	return Value{}, fmt.Errorf("%w: unknown operator %q", coreerrors.ErrExpressionEval, n.op)
}

func compareNum(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

func compareStr(op string, l, r string) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

func valuesEqual(l, r Value) bool {
	if l.Kind == KindNumber || r.Kind == KindNumber {
		ln, lerr := toNum(l)
		rn, rerr := toNum(r)
		if lerr == nil && rerr == nil {
			return ln == rn
		}
	}
	return toStr(l) == toStr(r)
}

func toNum(v Value) (float64, error) {
	switch v.Kind {
	case KindNumber:
		return v.Num, nil
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot coerce %q to number", coreerrors.ErrExpressionEval, v.Str)
		}
		return f, nil
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return math.NaN(), nil
	}
}

func toStr(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

type callNode struct {
	name string
	args []Node
}

func (n *callNode) eval(env *evalEnv) (Value, error) {
	switch n.name {
	case "uuid":
		return Value{Kind: KindString, Str: env.idgen("uuid")}, nil
	case "now", "timestamp":
		return Value{Kind: KindString, Str: env.clock()}, nil
	case "seq":
		if len(n.args) != 2 {
			return Value{}, fmt.Errorf("%w: seq() takes 2 arguments", coreerrors.ErrExpressionEval)
		}
		prefixV, err := n.args[0].eval(env)
		if err != nil {
			return Value{}, err
		}
		lenV, err := n.args[1].eval(env)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: env.idgen("seq", prefixV.Str, toStr(lenV))}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown function %q", coreerrors.ErrExpressionEval, n.name)
	}
}
