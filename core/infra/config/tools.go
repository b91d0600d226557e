package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolSpec describes one external tool invocation template. Args may contain
// placeholders ({tools}, {source}, {dest}, {dir}, {apk}, {outdir}) expanded
// per job.
type ToolSpec struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int64    `yaml:"timeout_seconds"`
}

// Timeout returns the per-stage timeout with the 5 minute default.
func (t ToolSpec) Timeout() time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// ToolsConfig holds the external tool command table.
type ToolsConfig struct {
	Unpack         ToolSpec `yaml:"unpack"`
	Repack         ToolSpec `yaml:"repack"`
	Sign           ToolSpec `yaml:"sign"`
	MaxOutputBytes int64    `yaml:"max_output_bytes"`
}

// LoadTools loads a YAML tools file; returns defaults if missing.
func LoadTools(path string) (*ToolsConfig, error) {
	if path == "" {
		return defaultTools(), nil
	}
	// #nosec G304 -- tools config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		// Return defaults if file missing
		return defaultTools(), fmt.Errorf("read tools config: %w", err)
	}
	return ParseTools(data)
}

// ParseTools parses tools config data from YAML bytes.
func ParseTools(data []byte) (*ToolsConfig, error) {
	if len(data) == 0 {
		return defaultTools(), nil
	}
	var cfg ToolsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return defaultTools(), fmt.Errorf("parse tools config: %w", err)
	}
	def := defaultTools()
	if cfg.Unpack.Command == "" {
		cfg.Unpack = def.Unpack
	}
	if cfg.Repack.Command == "" {
		cfg.Repack = def.Repack
	}
	if cfg.Sign.Command == "" {
		cfg.Sign = def.Sign
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	return &cfg, nil
}

// ExpandArgs substitutes {placeholder} tokens in an args template.
func ExpandArgs(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		for key, val := range vars {
			arg = strings.ReplaceAll(arg, "{"+key+"}", val)
		}
		out[i] = arg
	}
	return out
}

func defaultTools() *ToolsConfig {
	return &ToolsConfig{
		Unpack: ToolSpec{
			Command:        "java",
			Args:           []string{"-jar", "{tools}/apktool.jar", "d", "{source}", "-o", "{dest}", "--force-all"},
			TimeoutSeconds: 300,
		},
		Repack: ToolSpec{
			Command:        "java",
			Args:           []string{"-jar", "{tools}/apktool.jar", "b", "{dir}", "-o", "{dest}", "--force-all"},
			TimeoutSeconds: 300,
		},
		Sign: ToolSpec{
			Command:        "java",
			Args:           []string{"-jar", "{tools}/uber-apk-signer.jar", "--apks", "{apk}", "--out", "{outdir}", "--allowResign"},
			TimeoutSeconds: 300,
		},
		MaxOutputBytes: 10 << 20,
	}
}
