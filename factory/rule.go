/*
Package factory converts evaluation rule documents into generic.EvaluationRule.

PURPOSE:
  The evaluation rule is stored by the goal backend, kept in YAML files next
  to the CLI, and typed by hand on the command line. The factory accepts all
  of these shapes, maps legacy type names, validates options and hands back a
  normalized rule (or a period generator bound to it).

ACCEPTED SHAPES:
  # canonical
  {"type": "weekly", "options": {"startWeekday": "sunday"}}

  # goal backend (GET /goal-settings)
  {"evaluation_rule_type": "custom-month",
   "evaluation_rule_options": {"startDay": 16, "endDay": 15}}

  # YAML
  type: quarterly
  options:
    fiscalStartMonth: 4

  # bare type name, legacy spellings included
  half-monthly

VALIDATION:
  - type must be one of the six rule types after legacy mapping
  - weekly: startWeekday, when set, is "monday" or "sunday"
  - quarterly: fiscalStartMonth, when set, is an integer 1..12
  - custom-month: startDay/endDay, when set, are finite numbers
    (clamping to 1..31 happens at generation time)
  Failures wrap generic.ErrInvalidRule.

USAGE:
  f := factory.NewRuleFactory()
  rule, err := f.ParseRule(data)
  periods := f.Generator(rule)(time.Now())

SEE ALSO:
  - generic/period.go: EvaluationRule and period generation
  - service/goalsettings.go: loads and saves the rule through the backend
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// DOCUMENT SCHEMA
// =============================================================================

// RuleDocument is the union of the canonical and backend rule shapes.
type RuleDocument struct {
	Type    string         `json:"type,omitempty" yaml:"type,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`

	EvaluationRuleType    string         `json:"evaluation_rule_type,omitempty" yaml:"evaluation_rule_type,omitempty"`
	EvaluationRuleOptions map[string]any `json:"evaluation_rule_options,omitempty" yaml:"evaluation_rule_options,omitempty"`
}

// Rule picks the canonical fields first, then the backend ones.
func (d RuleDocument) Rule() generic.EvaluationRule {
	ruleType := d.Type
	if strings.TrimSpace(ruleType) == "" {
		ruleType = d.EvaluationRuleType
	}
	options := d.Options
	if options == nil {
		options = d.EvaluationRuleOptions
	}
	return generic.NormalizeRule(generic.EvaluationRule{Type: generic.RuleType(ruleType), Options: options})
}

// BackendPayload is the body of PUT /goal-settings.
type BackendPayload struct {
	EvaluationRuleType    string         `json:"evaluation_rule_type"`
	EvaluationRuleOptions map[string]any `json:"evaluation_rule_options"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

var knownRuleTypes = map[generic.RuleType]bool{
	generic.RuleMonthly:     true,
	generic.RuleHalfMonth:   true,
	generic.RuleMasterMonth: true,
	generic.RuleWeekly:      true,
	generic.RuleQuarterly:   true,
	generic.RuleCustomMonth: true,
}

// ParseRule decodes JSON, YAML or a bare type name and validates the result.
func (f *RuleFactory) ParseRule(data []byte) (generic.EvaluationRule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return generic.EvaluationRule{}, fmt.Errorf("%w: empty rule document", generic.ErrInvalidRule)
	}

	var doc RuleDocument
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return generic.EvaluationRule{}, fmt.Errorf("%w: parse rule JSON: %v", generic.ErrInvalidRule, err)
		}
	default:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return generic.EvaluationRule{}, fmt.Errorf("%w: parse rule YAML: %v", generic.ErrInvalidRule, err)
		}
		if len(node.Content) == 1 && node.Content[0].Kind == yaml.ScalarNode {
			return f.FromDocument(RuleDocument{Type: node.Content[0].Value})
		}
		if err := node.Decode(&doc); err != nil {
			return generic.EvaluationRule{}, fmt.Errorf("%w: decode rule YAML: %v", generic.ErrInvalidRule, err)
		}
	}
	return f.FromDocument(doc)
}

// ParseRuleString is ParseRule for command-line input.
func (f *RuleFactory) ParseRuleString(s string) (generic.EvaluationRule, error) {
	return f.ParseRule([]byte(s))
}

// FromDocument normalizes and validates a decoded document.
func (f *RuleFactory) FromDocument(doc RuleDocument) (generic.EvaluationRule, error) {
	rule := doc.Rule()
	if err := f.Validate(rule); err != nil {
		return generic.EvaluationRule{}, err
	}
	return rule, nil
}

// Validate checks the rule type and the options that type reads.
func (f *RuleFactory) Validate(rule generic.EvaluationRule) error {
	ruleType := generic.NormalizeRuleType(string(rule.Type))
	if !knownRuleTypes[ruleType] {
		return fmt.Errorf("%w: unknown rule type %q", generic.ErrInvalidRule, rule.Type)
	}

	switch ruleType {
	case generic.RuleWeekly:
		if v, ok := present(rule.Options, generic.OptStartWeekday); ok {
			s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
			if s != "monday" && s != "sunday" {
				return fmt.Errorf("%w: startWeekday must be monday or sunday, got %q", generic.ErrInvalidRule, s)
			}
		}
	case generic.RuleQuarterly:
		if v, ok := present(rule.Options, generic.OptFiscalStartMonth); ok {
			m, isNum := finite(v)
			if !isNum || m != math.Trunc(m) || m < 1 || m > 12 {
				return fmt.Errorf("%w: fiscalStartMonth must be 1..12, got %v", generic.ErrInvalidRule, v)
			}
		}
	case generic.RuleCustomMonth:
		for _, key := range []string{generic.OptStartDay, generic.OptEndDay} {
			if v, ok := present(rule.Options, key); ok {
				if _, isNum := finite(v); !isNum {
					return fmt.Errorf("%w: %s must be a number, got %v", generic.ErrInvalidRule, key, v)
				}
			}
		}
	}
	return nil
}

// Generator binds a rule to period generation.
func (f *RuleFactory) Generator(rule generic.EvaluationRule) func(now time.Time) []generic.EvaluationPeriod {
	normalized := generic.NormalizeRule(rule)
	return func(now time.Time) []generic.EvaluationPeriod {
		return generic.GeneratePeriods(normalized, now)
	}
}

// ToBackend converts a rule to the goal backend shape.
func (f *RuleFactory) ToBackend(rule generic.EvaluationRule) BackendPayload {
	normalized := generic.NormalizeRule(rule)
	return BackendPayload{
		EvaluationRuleType:    string(normalized.Type),
		EvaluationRuleOptions: normalized.Options,
	}
}

// MarshalYAML renders a rule in the canonical YAML shape.
func (f *RuleFactory) MarshalYAML(rule generic.EvaluationRule) ([]byte, error) {
	normalized := generic.NormalizeRule(rule)
	return yaml.Marshal(RuleDocument{Type: string(normalized.Type), Options: normalized.Options})
}

// =============================================================================
// HELPERS
// =============================================================================

func present(options map[string]any, key string) (any, bool) {
	v, ok := options[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

// finite reports whether v parses as a finite number.
func finite(v any) (float64, bool) {
	d, ok := generic.ToDecimal(v)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}
