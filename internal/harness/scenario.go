package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// Scenario defines a reconciliation test scenario.
// A scenario applies a sequence of source snapshots to one dimension and
// asserts on the resulting target table.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dimension is the inline dimension definition.
	Dimension DimensionDef `yaml:"dimension"`

	// Runs are applied in order, each against the table the previous
	// successful run left behind.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final table and run log.
	// Supported types: row_count, active_count, run_count, row, invariants, idempotent
	Assertions []Assertion `yaml:"assertions"`
}

// DimensionDef is a dimension definition written inline in a scenario.
type DimensionDef struct {
	// Name defaults to the scenario name.
	Name string `yaml:"name,omitempty"`

	// Columns is optional. Without it the schema is inferred from the rows.
	Columns []ColumnDef `yaml:"columns,omitempty"`

	Tracked []string `yaml:"tracked"`
}

// ColumnDef declares one column.
type ColumnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// RunStep is one reconciliation run.
type RunStep struct {
	// At is the RFC 3339 run timestamp. When empty the harness clock
	// supplies one.
	At string `yaml:"at,omitempty"`

	// Source is the snapshot, one map per row.
	Source []map[string]any `yaml:"source"`

	// ExpectError is the error code the run must fail with, e.g.
	// DUPLICATE_FINGERPRINT. Empty means the run must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final table or the run log.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": total rows in the final table
	// - "active_count": active rows in the final table
	// - "run_count": committed runs in the log
	// - "row": exactly one row matches Where, Active, Start and End
	// - "invariants": the final table passes engine.CheckInvariants
	// - "idempotent": re-running the last successful source changes nothing
	Type string `yaml:"type"`

	// Count is the expected number (row_count, active_count, run_count).
	Count *int `yaml:"count,omitempty"`

	// Where matches attribute values (row). Subset match.
	Where map[string]any `yaml:"where,omitempty"`

	// Active matches is_active (row).
	Active *bool `yaml:"active,omitempty"`

	// Start matches start_ts (row), RFC 3339.
	Start string `yaml:"start_ts,omitempty"`

	// Closed matches end_ts (row), RFC 3339. Implies the row is inactive.
	Closed string `yaml:"closed,omitempty"`

	// At is the timestamp of the idempotence re-run. Defaults to one hour
	// after the last run.
	At string `yaml:"at,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount    = "row_count"
	AssertActiveCount = "active_count"
	AssertRunCount    = "run_count"
	AssertRow         = "row"
	AssertInvariants  = "invariants"
	AssertIdempotent  = "idempotent"
)

// Spec converts the inline definition to a DimensionSpec.
func (s *Scenario) Spec() ir.DimensionSpec {
	spec := ir.DimensionSpec{
		Name:        s.Dimension.Name,
		Description: s.Description,
		Tracked:     append([]string(nil), s.Dimension.Tracked...),
	}
	if spec.Name == "" {
		spec.Name = s.Name
	}
	for _, c := range s.Dimension.Columns {
		spec.Columns = append(spec.Columns, ir.Column{
			Name:     c.Name,
			Type:     ir.ColumnType(c.Type),
			Nullable: c.Nullable,
		})
	}
	return spec
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Dimension.Tracked) == 0 {
		return fmt.Errorf("dimension.tracked is required and must be non-empty")
	}

	for i, c := range s.Dimension.Columns {
		if c.Name == "" {
			return fmt.Errorf("dimension.columns[%d]: name is required", i)
		}
		if !ir.ValidColumnTypes[ir.ColumnType(c.Type)] {
			return fmt.Errorf("dimension.columns[%d]: unknown type %q", i, c.Type)
		}
	}

	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		if run.At != "" {
			if _, err := parseTime(run.At); err != nil {
				return fmt.Errorf("runs[%d].at: %w", i, err)
			}
		}
		if run.ExpectError != "" && !knownErrorCodes[engine.ErrorCode(run.ExpectError)] {
			return fmt.Errorf("runs[%d]: unknown expect_error %q", i, run.ExpectError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

var knownErrorCodes = map[engine.ErrorCode]bool{
	engine.ErrCodeConfiguration:        true,
	engine.ErrCodeSchemaMismatch:       true,
	engine.ErrCodeDuplicateFingerprint: true,
	engine.ErrCodeTemporalOrdering:     true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount, AssertActiveCount, AssertRunCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRow:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for row", index)
		}
		for field, ts := range map[string]string{"start_ts": a.Start, "closed": a.Closed} {
			if ts == "" {
				continue
			}
			if _, err := parseTime(ts); err != nil {
				return fmt.Errorf("assertions[%d].%s: %w", index, field, err)
			}
		}
		if a.Closed != "" && a.Active != nil && *a.Active {
			return fmt.Errorf("assertions[%d]: a closed row cannot be active", index)
		}
	case AssertInvariants:
	case AssertIdempotent:
		if a.At != "" {
			if _, err := parseTime(a.At); err != nil {
				return fmt.Errorf("assertions[%d].at: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return ir.NormalizeTime(t), nil
}
