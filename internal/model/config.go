package model

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	// placeholders expanded in Analyzer.Args
	PlaceholderSource = "{source}"
	PlaceholderOutput = "{output}"
	PlaceholderID     = "{id}"

	DefaultTimeout     = Duration(60 * time.Second)
	DefaultParallelism = 4
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Analyzer Analyzer `json:"analyzer" yaml:"analyzer"`
	Service  Service  `json:"service" yaml:"service"`
}

// Analyzer describes how the external analyzer is executed.
type Analyzer struct {
	Executable  string            `json:"executable" yaml:"executable"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"` // may use {source}, {output} and {id}
	Timeout     Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OutputDir   string            `json:"output_dir,omitempty" yaml:"output_dir,omitempty"` // empty => os.TempDir()/moderator
	StrictShape bool              `json:"strict_shape,omitempty" yaml:"strict_shape,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

type Service struct {
	Mode        string      `json:"mode" yaml:"mode"` // "manual" | "timer"
	Schedule    *Schedule   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Verbose     bool        `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log         string      `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Parallelism int         `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	Inbox       *Inbox      `json:"inbox,omitempty" yaml:"inbox,omitempty"`
	Dir         string      `json:"dir,omitempty" yaml:"dir,omitempty"` // verdict output directory
	Repository  *Repository `json:"repository,omitempty" yaml:"repository,omitempty"`
	AMQP        *AMQP       `json:"amqp,omitempty" yaml:"amqp,omitempty"`
	Metrics     *Metrics    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing     *Tracing    `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// Schedule of timer mode, exactly one of Cron or Duration is set.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Inbox is a set of directories watched for new videos.
type Inbox struct {
	Paths      []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Repository is a remote HTTP service receiving verdicts.
type Repository struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

// AMQP broker used for both moderation requests and verdicts.
type AMQP struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Queue    string `json:"queue,omitempty" yaml:"queue,omitempty"`
	Prefetch int    `json:"prefetch,omitempty" yaml:"prefetch,omitempty"`
}

type Metrics struct {
	Listen string `json:"listen" yaml:"listen"`
}

type Tracing struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DefaultConfig is stored to the user config directory on a first run.
func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Analyzer: Analyzer{
			Executable: "python3",
			Args:       []string{"video_nsfw_detector.py", PlaceholderSource, PlaceholderOutput},
			Timeout:    DefaultTimeout,
			OutputDir:  filepath.Join(os.TempDir(), "moderator"),
		},
		Service: Service{
			Mode:        ServiceModeManual,
			Log:         LogStderr,
			Parallelism: DefaultParallelism,
		},
	}
}
