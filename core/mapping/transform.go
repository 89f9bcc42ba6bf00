// Package mapping implements C2, the Payload Transformer: applying a
// configured domain.PayloadMapping to a request or response payload
// (spec §4.2).
package mapping

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Transformer applies domain.PayloadMapping rules to request/response maps.
// It is a pure function of (source, clock, id-gen) per spec §4.2.
type Transformer struct {
	clock secondary.Clock
	idgen secondary.IDGenerator
	// encryptionKey, when set, backs the "encrypt"/"decrypt" transformation
	// primitives (AES-GCM). Nil means those primitives error if invoked.
	encryptionKey []byte
}

// NewTransformer builds a Transformer with the given clock/id-gen collaborators.
func NewTransformer(clock secondary.Clock, idgen secondary.IDGenerator, encryptionKey []byte) *Transformer {
	return &Transformer{clock: clock, idgen: idgen, encryptionKey: encryptionKey}
}

// Transform applies mapping to source in the fixed rule-category order of
// spec §4.2: field-map -> derived-value -> value-assignment ->
// auto-generation -> conditional -> defaults. Within a category, rules are
// applied in ascending Priority order. On any rule error the transformer
// fails closed and returns the error without a partial result.
func (t *Transformer) Transform(mapping domain.PayloadMapping, direction domain.MappingDirection, source map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(source))
	for k, v := range source {
		out[k] = v
	}

	env := &evalEnv{
		source: source,
		clock:  func() string { return t.clock.Now().UTC().Format(time.RFC3339Nano) },
		idgen: func(kind string, args ...string) string {
			switch kind {
			case "uuid":
				return t.idgen.UUID()
			case "seq":
				prefix := ""
				length := 0
				if len(args) > 0 {
					prefix = args[0]
				}
				if len(args) > 1 {
					length, _ = strconv.Atoi(args[1])
				}
				return t.idgen.Sequential(prefix, length)
			default:
				return ""
			}
		},
	}

	fieldMaps := append([]domain.FieldMapRule(nil), mapping.FieldMap...)
	sort.SliceStable(fieldMaps, func(i, j int) bool { return fieldMaps[i].Priority < fieldMaps[j].Priority })
	for _, rule := range fieldMaps {
		val, ok := source[rule.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", coreerrors.ErrMissingField, rule.Source)
		}
		if rule.Transformation != "" {
			transformed, err := applyTransformation(rule.Transformation, val, t.encryptionKey)
			if err != nil {
				return nil, err
			}
			val = transformed
		}
		out[rule.Target] = val
	}

	derived := append([]domain.DerivedValueRule(nil), mapping.Derived...)
	sort.SliceStable(derived, func(i, j int) bool { return derived[i].Priority < derived[j].Priority })
	for _, rule := range derived {
		node, err := ParseExpression(rule.Expression)
		if err != nil {
			return nil, err
		}
		v, err := node.eval(env)
		if err != nil {
			return nil, err
		}
		coerced, err := coerce(v, rule.ValueType)
		if err != nil {
			return nil, err
		}
		out[rule.Target] = coerced
		// later rule categories can reference values produced by earlier ones
		env.source = out
	}

	assignments := append([]domain.ValueAssignmentRule(nil), mapping.Assignments...)
	sort.SliceStable(assignments, func(i, j int) bool { return assignments[i].Priority < assignments[j].Priority })
	for _, rule := range assignments {
		out[rule.Target] = expandTokens(rule.Value, t.clock, t.idgen)
	}

	autoGen := append([]domain.AutoGenerationRule(nil), mapping.AutoGen...)
	sort.SliceStable(autoGen, func(i, j int) bool { return autoGen[i].Priority < autoGen[j].Priority })
	for _, rule := range autoGen {
		out[rule.Target] = t.generate(rule)
	}

	conditionals := append([]domain.ConditionalRule(nil), mapping.Conditionals...)
	sort.SliceStable(conditionals, func(i, j int) bool { return conditionals[i].Priority < conditionals[j].Priority })
	env.source = out
	for _, rule := range conditionals {
		node, err := ParseExpression(rule.Predicate)
		if err != nil {
			return nil, err
		}
		v, err := node.eval(env)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out[rule.Target] = expandTokens(rule.Value, t.clock, t.idgen)
		}
	}

	for field, def := range mapping.Defaults {
		if _, exists := out[field]; !exists {
			out[field] = def
		}
	}

	return out, nil
}

func coerce(v Value, wantType string) (any, error) {
	switch wantType {
	case "STRING", "":
		return toStr(v), nil
	case "NUMBER":
		n, err := toNum(v)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "BOOLEAN":
		return truthy(v), nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", coreerrors.ErrExpressionEval, wantType)
	}
}

var tokenRe = regexp.MustCompile(`\{\{\s*(uuid|now|timestamp|seq)\(([^)]*)\)\s*\}\}`)

// expandTokens replaces {{uuid()}}, {{now()}}/{{timestamp()}}, and
// {{seq(prefix,len)}} tokens within a literal value-assignment string.
func expandTokens(s string, clock secondary.Clock, idgen secondary.IDGenerator) string {
	return tokenRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := tokenRe.FindStringSubmatch(match)
		fn, argStr := sub[1], sub[2]
		switch fn {
		case "uuid":
			return idgen.UUID()
		case "now", "timestamp":
			return clock.Now().UTC().Format(time.RFC3339Nano)
		case "seq":
			parts := strings.Split(argStr, ",")
			prefix := ""
			length := 0
			if len(parts) > 0 {
				prefix = strings.TrimSpace(strings.Trim(parts[0], `"'`))
			}
			if len(parts) > 1 {
				length, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
			}
			return idgen.Sequential(prefix, length)
		default:
			return match
		}
	})
}

func (t *Transformer) generate(rule domain.AutoGenerationRule) string {
	var base string
	switch rule.Kind {
	case domain.AutoGenUUID:
		base = t.idgen.UUID()
	case domain.AutoGenTimestamp:
		base = t.clock.Now().UTC().Format(time.RFC3339Nano)
	case domain.AutoGenSequential:
		base = t.idgen.Sequential(rule.Prefix, rule.Length)
		return base + rule.Suffix
	}
	return rule.Prefix + base + rule.Suffix
}

// applyTransformation applies a single named transformation primitive of
// spec §3 to a field value during field-map copy.
func applyTransformation(name string, val any, key []byte) (any, error) {
	s := fmt.Sprintf("%v", val)
	switch name {
	case "uppercase":
		return strings.ToUpper(s), nil
	case "trim":
		return strings.TrimSpace(s), nil
	case "mask":
		return maskString(s), nil
	case "date_format":
		return s, nil // format string supplied out-of-band; identity here
	case "number_format":
		return s, nil
	case "encrypt":
		return encryptString(s, key)
	case "decrypt":
		return decryptString(s, key)
	default:
		return nil, fmt.Errorf("%w: unknown transformation %q", coreerrors.ErrExpressionEval, name)
	}
}

func maskString(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func encryptString(plain string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: no encryption key configured", coreerrors.ErrExpressionEval)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decryptString(enc string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: no encryption key configured", coreerrors.ErrExpressionEval)
	}
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", coreerrors.ErrExpressionEval)
	}
	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
