package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
)

// Scenario defines one pass scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Primary is the file served as the primary input. It must be in Files.
	Primary string `yaml:"primary"`

	// Format, when set, makes every pass load this format, dumping it into
	// a scratch format cache on the first pass.
	Format string `yaml:"format,omitempty"`

	// MaxPasses overrides the driver's pass ceiling.
	MaxPasses int `yaml:"max_passes,omitempty"`

	// RunID is the fixed run id. Defaults to "scenario-run".
	RunID string `yaml:"run_id,omitempty"`

	// Files are the document's files, by name.
	Files map[string]string `yaml:"files"`

	// Formats are format inputs available from the start.
	Formats map[string]string `yaml:"formats,omitempty"`

	// Expect is the job-level outcome.
	Expect Expect `yaml:"expect"`

	// Assertions are checked after the job finishes.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expect is the expected job outcome. Exactly one of Verdict and Error is
// set.
type Expect struct {
	// Verdict is the final verdict, as printed by passes.Verdict.String.
	Verdict string `yaml:"verdict,omitempty"`

	// Passes is the number of passes run. Zero skips the check.
	Passes int `yaml:"passes,omitempty"`

	// Error is a substring of the job error.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks one detail of the outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Name is the file the assertion is about.
	Name string `yaml:"name,omitempty"`

	// Pass selects a pass report (1-based, in run order).
	Pass int `yaml:"pass,omitempty"`

	// Content is the expected text (file_equals) or substring
	// (file_contains, message_contains).
	Content string `yaml:"content,omitempty"`

	// Reason narrows a divergence assertion.
	Reason string `yaml:"reason,omitempty"`

	// Level is a status level: note, warning or error.
	Level string `yaml:"level,omitempty"`

	// Count is the expected number of messages (message_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFileEquals      = "file_equals"
	AssertFileContains    = "file_contains"
	AssertDivergence      = "divergence"
	AssertRead            = "read"
	AssertWritten         = "written"
	AssertMessageCount    = "message_count"
	AssertMessageContains = "message_contains"
)

var validLevels = map[string]bool{"note": true, "warning": true, "error": true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "reading scenario file")
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, errs.Wrap(err, "loading %s", path)
	}
	return s, nil
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindParse, err), "parsing YAML")
	}
	if err := validateScenario(&s); err != nil {
		return nil, errs.Wrap(err, "invalid scenario")
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errs.New("name is required")
	}
	if s.Description == "" {
		return errs.New("description is required")
	}
	if s.Primary == "" {
		return errs.New("primary is required")
	}
	if _, ok := s.Files[s.Primary]; !ok {
		return errs.Newf("primary %s is not among the files", s.Primary)
	}
	if s.MaxPasses < 0 {
		return errs.New("max_passes must be non-negative")
	}

	switch {
	case s.Expect.Verdict == "" && s.Expect.Error == "":
		return errs.New("expect needs a verdict or an error")
	case s.Expect.Verdict != "" && s.Expect.Error != "":
		return errs.New("expect cannot have both a verdict and an error")
	case s.Expect.Verdict != "":
		if _, err := passes.ParseVerdict(s.Expect.Verdict); err != nil {
			return errs.Wrap(err, "expect")
		}
	}
	if s.Expect.Passes < 0 {
		return errs.New("expect.passes must be non-negative")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return errs.Newf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFileEquals, AssertFileContains:
		if a.Name == "" {
			return errs.Newf("assertions[%d]: name is required for %s", index, a.Type)
		}
	case AssertDivergence, AssertRead, AssertWritten:
		if a.Name == "" {
			return errs.Newf("assertions[%d]: name is required for %s", index, a.Type)
		}
		if a.Pass < 1 {
			return errs.Newf("assertions[%d]: pass must be at least 1 for %s", index, a.Type)
		}
	case AssertMessageCount:
		if !validLevels[a.Level] {
			return errs.Newf("assertions[%d]: level must be note, warning or error", index)
		}
		if a.Count < 0 {
			return errs.Newf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertMessageContains:
		if !validLevels[a.Level] {
			return errs.Newf("assertions[%d]: level must be note, warning or error", index)
		}
		if a.Content == "" {
			return errs.Newf("assertions[%d]: content is required for %s", index, a.Type)
		}
	default:
		return errs.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (a Assertion) String() string {
	switch a.Type {
	case AssertDivergence, AssertRead, AssertWritten:
		return fmt.Sprintf("%s %s in pass %d", a.Type, a.Name, a.Pass)
	case AssertMessageCount, AssertMessageContains:
		return fmt.Sprintf("%s (%s)", a.Type, a.Level)
	default:
		return fmt.Sprintf("%s %s", a.Type, a.Name)
	}
}
