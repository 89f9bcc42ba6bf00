package domain

// MappingDirection is the data-flow direction a PayloadMapping applies to.
type MappingDirection string

const (
	DirectionRequest        MappingDirection = "REQUEST"
	DirectionResponse       MappingDirection = "RESPONSE"
	DirectionBidirectional  MappingDirection = "BIDIRECTIONAL"
	DirectionFraudAPIRequest  MappingDirection = "FRAUD_API_REQUEST"
	DirectionFraudAPIResponse MappingDirection = "FRAUD_API_RESPONSE"
)

// MappingType enumerates the rule categories of spec §3/§4.2.
type MappingType string

const (
	MappingFieldMapping    MappingType = "FIELD_MAPPING"
	MappingValueAssignment MappingType = "VALUE_ASSIGNMENT"
	MappingDerivedValue    MappingType = "DERIVED_VALUE"
	MappingAutoGeneration  MappingType = "AUTO_GENERATION"
	MappingConditional     MappingType = "CONDITIONAL"
	MappingTransformation  MappingType = "TRANSFORMATION"
)

// AutoGenKind enumerates spec §3's auto-generation rule kinds.
type AutoGenKind string

const (
	AutoGenUUID        AutoGenKind = "UUID"
	AutoGenTimestamp   AutoGenKind = "TIMESTAMP"
	AutoGenSequential  AutoGenKind = "SEQUENTIAL"
)

// FieldMapRule copies src -> tgt, optionally applying a named transformation.
type FieldMapRule struct {
	Source         string
	Target         string
	Transformation string // one of: uppercase, trim, mask, date_format, number_format, encrypt, decrypt
	Priority       int
}

// ValueAssignmentRule writes a literal (possibly templated) value to Target.
type ValueAssignmentRule struct {
	Target   string
	Value    string // may contain {{uuid()}}, {{now()}}, {{seq(prefix,len)}}
	Priority int
}

// DerivedValueRule evaluates Expression (grammar of spec §4.2) and assigns
// the coerced result to Target.
type DerivedValueRule struct {
	Target     string
	Expression string
	ValueType  string // STRING | NUMBER | BOOLEAN
	Priority   int
}

// AutoGenerationRule produces a generated value for Target.
type AutoGenerationRule struct {
	Target   string
	Kind     AutoGenKind
	Prefix   string
	Suffix   string
	Length   int
	Priority int
}

// ConditionalRule assigns Target to Value iff Predicate evaluates truthy.
type ConditionalRule struct {
	Predicate string
	Target    string
	Value     string
	Priority  int
}

// PayloadMapping is the full configured mapping of spec §3, identity
// (TenantID, Name).
type PayloadMapping struct {
	TenantID      string
	Name          string
	Direction     MappingDirection
	Type          MappingType
	FieldMap      []FieldMapRule
	Assignments   []ValueAssignmentRule
	Derived       []DerivedValueRule
	AutoGen       []AutoGenerationRule
	Conditionals  []ConditionalRule
	Defaults      map[string]any
	Priority      int
}
