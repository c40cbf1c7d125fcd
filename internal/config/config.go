// Package config loads job files and turns them into provider stacks.
//
// A job file is YAML (texstack.yaml, texstack.yml), TOML (texstack.toml) or
// CUE (texstack.cue). All three decode into the same Job and are validated
// against one embedded CUE schema, so a job means the same thing in every
// syntax.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
)

//go:embed schema.cue
var schemaSource string

// FileNames are the job file names Find looks for, in preference order.
var FileNames = []string{"texstack.yaml", "texstack.yml", "texstack.toml", "texstack.cue"}

// DefaultStateDB is where pass state lives, relative to the job file.
const DefaultStateDB = ".texstack/state.db"

// Provider types.
const (
	TypeLocal       = "local"
	TypeMemFS       = "memfs"
	TypeBundle      = "bundle"
	TypeFormatCache = "format-cache"
	TypeNetCache    = "netcache"
	TypeStdio       = "stdio"
)

// Job is a decoded job file.
type Job struct {
	Job       string `yaml:"job" toml:"job" json:"job,omitempty"`
	MaxPasses int    `yaml:"max_passes" toml:"max_passes" json:"max_passes,omitempty"`
	StateDB   string `yaml:"state_db" toml:"state_db" json:"state_db,omitempty"`
	// Format is the format every pass loads, dumped on first use.
	Format    string           `yaml:"format" toml:"format" json:"format,omitempty"`
	Providers []ProviderConfig `yaml:"providers" toml:"providers" json:"providers"`

	// Path is the absolute path of the job file. Relative paths in the
	// job resolve against its directory.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// ProviderConfig configures one layer of the provider stack. Which fields
// apply depends on Type.
type ProviderConfig struct {
	Type      string            `yaml:"type" toml:"type" json:"type"`
	Path      string            `yaml:"path" toml:"path" json:"path,omitempty"`
	Primary   string            `yaml:"primary" toml:"primary" json:"primary,omitempty"`
	Writable  bool              `yaml:"writable" toml:"writable" json:"writable,omitempty"`
	FormatDir string            `yaml:"format_dir" toml:"format_dir" json:"format_dir,omitempty"`
	Files     map[string]string `yaml:"files" toml:"files" json:"files,omitempty"`
	Codec     string            `yaml:"codec" toml:"codec" json:"codec,omitempty"`
	Bucket    string            `yaml:"bucket" toml:"bucket" json:"bucket,omitempty"`
	Prefix    string            `yaml:"prefix" toml:"prefix" json:"prefix,omitempty"`
	Region    string            `yaml:"region" toml:"region" json:"region,omitempty"`
	Endpoint  string            `yaml:"endpoint" toml:"endpoint" json:"endpoint,omitempty"`
	PathStyle bool              `yaml:"path_style" toml:"path_style" json:"path_style,omitempty"`
	Timeout   string            `yaml:"timeout" toml:"timeout" json:"timeout,omitempty"`
	Stdin     bool              `yaml:"stdin" toml:"stdin" json:"stdin,omitempty"`
}

// Dir returns the directory holding the job file.
func (j *Job) Dir() string {
	return filepath.Dir(j.Path)
}

// Name returns the job name, defaulting to the job directory's base name.
func (j *Job) Name() string {
	if j.Job != "" {
		return j.Job
	}
	return filepath.Base(j.Dir())
}

// ID returns the stable identity pass state is stored under.
func (j *Job) ID() string {
	return passes.JobKey(j.Path, j.Name())
}

// Passes returns the pass ceiling.
func (j *Job) Passes() int {
	if j.MaxPasses > 0 {
		return j.MaxPasses
	}
	return passes.DefaultMaxPasses
}

// StatePath returns the absolute path of the state database.
func (j *Job) StatePath() string {
	if j.StateDB == "" {
		return filepath.Join(j.Dir(), filepath.FromSlash(DefaultStateDB))
	}
	return j.resolve(j.StateDB)
}

// resolve expands a leading "~/" and makes p absolute against the job
// directory.
func (j *Job) resolve(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, filepath.FromSlash(rest))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(j.Dir(), filepath.FromSlash(p))
}

// Find looks for a job file in dir and then in each parent directory.
func Find(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errs.Foreign(errs.KindIO, err)
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(abs, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", errs.Wrap(errs.Foreign(errs.KindIO, err), "checking %s", candidate)
			}
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errs.Newf("no job file (%s) found in %s or its parents", strings.Join(FileNames, ", "), dir)
		}
		abs = parent
	}
}

// Load reads and validates the job file at path.
func Load(path string) (*Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Foreign(errs.KindIO, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "reading job file")
	}
	job, err := Parse(filepath.Ext(abs), data)
	if err != nil {
		return nil, errs.Wrap(err, "loading %s", abs)
	}
	job.Path = abs
	return job, nil
}

// Parse decodes a job from data in the syntax named by ext (".yaml",
// ".yml", ".toml" or ".cue") and validates it. The returned Job has no
// Path.
func Parse(ext string, data []byte) (*Job, error) {
	var (
		job *Job
		err error
	)
	switch ext {
	case ".yaml", ".yml":
		job, err = parseYAML(data)
	case ".toml":
		job, err = parseTOML(data)
	case ".cue":
		return parseCUE(data)
	default:
		return nil, errs.Foreign(errs.KindConfig, fmt.Errorf("unsupported job file type %q", ext))
	}
	if err != nil {
		return nil, err
	}
	if err := validate(job); err != nil {
		return nil, err
	}
	return job, nil
}

func parseYAML(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindConfig, err), "parsing YAML")
	}
	return &job, nil
}

func parseTOML(data []byte) (*Job, error) {
	var job Job
	meta, err := toml.Decode(string(data), &job)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindConfig, err), "parsing TOML")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errs.Foreign(errs.KindConfig, fmt.Errorf("parsing TOML: unknown keys %s", strings.Join(keys, ", ")))
	}
	return &job, nil
}

func jobSchema(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, errs.Wrap(errs.Foreign(errs.KindConfig, err), "compiling job schema")
	}
	return schema.LookupPath(cue.ParsePath("#Job")), nil
}

func parseCUE(data []byte) (*Job, error) {
	ctx := cuecontext.New()
	schema, err := jobSchema(ctx)
	if err != nil {
		return nil, err
	}
	v := ctx.CompileBytes(data, cue.Filename("job.cue"))
	if err := v.Err(); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindConfig, err), "parsing CUE")
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindConfig, err), "invalid job")
	}
	var job Job
	if err := v.Decode(&job); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindConfig, err), "decoding CUE")
	}
	if err := checkValues(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// validate checks a job decoded from YAML or TOML against the schema.
func validate(job *Job) error {
	ctx := cuecontext.New()
	schema, err := jobSchema(ctx)
	if err != nil {
		return err
	}
	v := schema.Unify(ctx.Encode(job))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errs.Wrap(errs.Foreign(errs.KindConfig, err), "invalid job")
	}
	return checkValues(job)
}

// checkValues covers what the schema cannot express.
func checkValues(job *Job) error {
	for i, p := range job.Providers {
		if p.Timeout != "" {
			if _, err := parseTimeout(p.Timeout); err != nil {
				return errs.Wrap(err, "providers[%d]", i)
			}
		}
	}
	return nil
}
