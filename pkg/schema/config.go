package schema

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"

	"github.com/custodia/recon/pkg/errors"
)

// Canonical field names the detector compares. Profiles may map any
// source or target column onto these, but the names themselves are
// fixed vocabulary across the pipeline.
const (
	FieldEventKey    = "coac_event_key"
	FieldISIN        = "isin"
	FieldExDate      = "ex_date"
	FieldGross       = "gross_amount"
	FieldTax         = "tax_amount"
	FieldNet         = "net_amount"
	FieldCurrency    = "currency"
	FieldRecordDate  = "record_date"
	FieldPaymentDate = "payment_date"
	FieldAccount     = "account"
)

// FieldType declares how a field's values coerce.
type FieldType string

// Field types known to the coercion probe.
const (
	TypeAmount   FieldType = "amount"
	TypeDate     FieldType = "date"
	TypeCurrency FieldType = "currency"
	TypeString   FieldType = "string"
)

// Amount wraps decimal.Decimal so tolerances survive YAML profiles
// without float drift.
type Amount struct {
	decimal.Decimal
}

// NewAmount builds an Amount from a decimal string, panicking on
// malformed literals. Only used for package defaults and tests.
func NewAmount(s string) Amount {
	return Amount{decimal.RequireFromString(s)}
}

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (a *Amount) UnmarshalYAML(b []byte) error {
	d, err := decimal.NewFromString(strings.Trim(string(b), `"' `))
	if err != nil {
		return errors.NewValidationError("amount", string(b), "not a decimal value")
	}
	a.Decimal = d
	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (a Amount) MarshalYAML() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// Duration wraps time.Duration for YAML profiles ("30m", "2h").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	parsed, err := time.ParseDuration(strings.Trim(string(b), `"' `))
	if err != nil {
		return errors.NewValidationError("duration", string(b), "not a duration value")
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// FieldSpec declares one target field: its coercion type, whether it is
// financially critical, and the source column names it is also known by.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Critical bool      `yaml:"critical,omitempty"`
	Synonyms []string  `yaml:"synonyms,omitempty"`
}

// DerivedRule computes a target field from two or more source fields.
type DerivedRule struct {
	Target   string   `yaml:"target"`
	Op       string   `yaml:"op"` // sum or difference
	Operands []string `yaml:"operands"`
}

// Formula renders the rule for the mapping plan.
func (r DerivedRule) Formula() string {
	sep := " + "
	if r.Op == OpDifference {
		sep = " - "
	}
	return strings.Join(r.Operands, sep)
}

// Derived rule operators.
const (
	OpSum        = "sum"
	OpDifference = "difference"
)

// AggregatedRule reduces grouped source rows into one target value.
type AggregatedRule struct {
	Target      string   `yaml:"target"`
	SourceField string   `yaml:"source_field"`
	GroupBy     []string `yaml:"group_by"`
}

// ContextualRule pairs a target field with a source field holding
// equivalent non-financial metadata under a different name.
type ContextualRule struct {
	Target string `yaml:"target"`
	Source string `yaml:"source"`
}

// Config is one reconciliation profile: the declared target schema,
// mapping rules, and the thresholds every stage shares.
type Config struct {
	// JoinKeyFields compose the economic event key. Fields under
	// comparison (record_date, payment_date) must not appear here or
	// their mismatches would split events instead of surfacing as breaks.
	JoinKeyFields []string `yaml:"join_key_fields"`

	// Fields declares the target schema. Header columns without a spec
	// are treated as non-critical strings.
	Fields []FieldSpec `yaml:"fields"`

	// DateLayouts extends the accepted date formats.
	DateLayouts []string `yaml:"date_layouts,omitempty"`

	// Derived, Aggregated and Contextual are the non-direct mapping
	// strategies, attempted in that order after direct matching fails.
	Derived    []DerivedRule    `yaml:"derived,omitempty"`
	Aggregated []AggregatedRule `yaml:"aggregated,omitempty"`
	Contextual []ContextualRule `yaml:"contextual,omitempty"`

	// AmountTolerance is the absolute tolerance in event currency below
	// which two amounts are considered equal.
	AmountTolerance Amount `yaml:"amount_tolerance"`

	// RoundingBound is the largest absolute difference still classified
	// as a rounding error eligible for auto-fix.
	RoundingBound Amount `yaml:"rounding_bound"`

	// MajorAmountRatio escalates an amount break to major severity when
	// the difference exceeds this share of the target magnitude.
	MajorAmountRatio Amount `yaml:"major_amount_ratio"`

	// DateBucketBusinessDays is the business-day distance up to which a
	// date mismatch stays minor.
	DateBucketBusinessDays int `yaml:"date_bucket_business_days"`

	// ConfidenceCutoff forces manual review below this classification
	// confidence.
	ConfidenceCutoff int `yaml:"confidence_cutoff"`

	// ConfirmationTimeout bounds the wait at the human approval gate.
	ConfirmationTimeout Duration `yaml:"confirmation_timeout"`
}

// DefaultConfig returns the profile for dividend event reconciliation
// with the policy defaults: 0.01 tolerance, one business day, 70%
// confidence cutoff.
func DefaultConfig() *Config {
	return &Config{
		JoinKeyFields: []string{FieldEventKey, FieldISIN, FieldExDate, FieldAccount},
		Fields: []FieldSpec{
			{Name: FieldEventKey, Type: TypeString, Critical: true, Synonyms: []string{"event_key", "event_id"}},
			{Name: FieldISIN, Type: TypeString, Critical: true, Synonyms: []string{"instrument_id", "security_id"}},
			{Name: FieldExDate, Type: TypeDate, Synonyms: []string{"exdate", "ex_dividend_date"}},
			{Name: FieldGross, Type: TypeAmount, Critical: true, Synonyms: []string{"gross_income", "gross_amt"}},
			{Name: FieldTax, Type: TypeAmount, Critical: true, Synonyms: []string{"withholding_tax", "wht_amount", "tax"}},
			{Name: FieldNet, Type: TypeAmount, Critical: true, Synonyms: []string{"net_income", "net_amt", "net_amount_settled"}},
			{Name: FieldCurrency, Type: TypeCurrency, Critical: true, Synonyms: []string{"ccy", "settlement_currency"}},
			{Name: FieldRecordDate, Type: TypeDate, Synonyms: []string{"rec_date"}},
			{Name: FieldPaymentDate, Type: TypeDate, Synonyms: []string{"pay_date", "paydate", "payment_dt"}},
			{Name: FieldAccount, Type: TypeString, Synonyms: []string{"custody_account", "bank_account", "account_number"}},
		},
		Derived: []DerivedRule{
			{Target: FieldNet, Op: OpDifference, Operands: []string{FieldGross, FieldTax}},
			{Target: FieldGross, Op: OpSum, Operands: []string{FieldNet, FieldTax}},
		},
		AmountTolerance:        NewAmount("0.01"),
		RoundingBound:          NewAmount("0.05"),
		MajorAmountRatio:       NewAmount("0.01"),
		DateBucketBusinessDays: 1,
		ConfidenceCutoff:       70,
		ConfirmationTimeout:    Duration{30 * time.Minute},
	}
}

// LoadConfig reads a YAML profile, layering it over the defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewValidationError("config", nil, err.Error())
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.NewValidationError("config", nil, "unparseable profile: "+err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML profile from disk.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewValidationError("config", path, err.Error())
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks profile consistency.
func (c *Config) Validate() error {
	if len(c.JoinKeyFields) == 0 {
		return errors.NewValidationError("join_key_fields", nil, "at least one join key field is required")
	}
	for _, k := range c.JoinKeyFields {
		if k == FieldRecordDate || k == FieldPaymentDate {
			return errors.NewValidationError("join_key_fields", k, "compared date fields cannot be join keys")
		}
	}
	if c.AmountTolerance.IsNegative() {
		return errors.NewValidationError("amount_tolerance", c.AmountTolerance.String(), "must not be negative")
	}
	if c.ConfidenceCutoff < 0 || c.ConfidenceCutoff > 100 {
		return errors.NewValidationError("confidence_cutoff", c.ConfidenceCutoff, "must be between 0 and 100")
	}
	for _, d := range c.Derived {
		if d.Op != OpSum && d.Op != OpDifference {
			return errors.NewValidationError("derived", d.Op, "op must be sum or difference")
		}
		if len(d.Operands) < 2 {
			return errors.NewValidationError("derived", d.Target, "derived mappings need at least two operands")
		}
	}
	for _, a := range c.Aggregated {
		if a.SourceField == "" || len(a.GroupBy) == 0 {
			return errors.NewValidationError("aggregated", a.Target, "aggregated mappings need a source field and group keys")
		}
	}
	return nil
}

// Spec returns the declared spec for a target field, defaulting to a
// non-critical string for undeclared columns.
func (c *Config) Spec(field string) FieldSpec {
	for _, fs := range c.Fields {
		if fs.Name == field {
			return fs
		}
	}
	return FieldSpec{Name: field, Type: TypeString}
}

// IsJoinKey reports whether the field composes the event key.
func (c *Config) IsJoinKey(field string) bool {
	for _, k := range c.JoinKeyFields {
		if k == field {
			return true
		}
	}
	return false
}
