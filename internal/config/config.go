// Package config loads and validates config.yaml.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// Config models config.yaml.
type Config struct {
	DevOps         DevOpsConfig  `yaml:"azure_devops"`
	Sources        SourcesConfig `yaml:"sources"`
	NonWorkingDays []string      `yaml:"non_working_days"`
	LLM            *LLMConfig    `yaml:"llm"`
}

type DevOpsConfig struct {
	BaseURL          string `yaml:"base_url"`
	Organization     string `yaml:"organization"`
	DefaultProject   string `yaml:"default_project"`
	DefaultArea      string `yaml:"default_area"`
	DefaultIteration string `yaml:"default_iteration"`
	AuthorEmail      string `yaml:"author_email"`
	AssignedTo       string `yaml:"assigned_to"`
	DefaultState     string `yaml:"default_state"`
	MonthlyStories   bool   `yaml:"create_monthly_user_stories"`
	StoryNameSuffix  string `yaml:"user_story_name"`
	EnhanceDescs     bool   `yaml:"enhance_descriptions"`
	LLMSystemPrompt  string `yaml:"llm_system_prompt"`
}

type SourcesConfig struct {
	Outlook   *OutlookConfig   `yaml:"outlook"`
	Recurring *RecurringConfig `yaml:"recurring"`
	Git       *GitConfig       `yaml:"git"`
}

type OutlookConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Type      string         `yaml:"type"` // csv, ics or graph_api
	CSVPath   string         `yaml:"csv_path"`
	ICSPath   string         `yaml:"ics_path"`
	UserEmail string         `yaml:"user_email"`
	Mapping   OutlookMapping `yaml:"mapping"`
}

type OutlookMapping struct {
	AreaPath string   `yaml:"area_path"`
	Tags     []string `yaml:"tags"`
}

type RecurringConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Templates []RecurringTemplate `yaml:"templates"`
}

type RecurringTemplate struct {
	Name     string   `yaml:"name"`
	Weekdays []int    `yaml:"weekdays"` // 0=Monday .. 6=Sunday
	Hours    float64  `yaml:"hours"`
	AreaPath string   `yaml:"area_path"`
	Tags     []string `yaml:"tags"`
}

type GitConfig struct {
	Enabled      bool            `yaml:"enabled"`
	Repositories []GitRepository `yaml:"repositories"`
}

type GitRepository struct {
	Name     string   `yaml:"name"`
	Project  string   `yaml:"project"`
	AreaPath string   `yaml:"area_path"`
	Tags     []string `yaml:"tags"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Load reads config from path, expanding ${VAR} references from the
// environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	expanded := ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := envVarPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

func (c *Config) applyDefaults() {
	if c.DevOps.BaseURL == "" {
		c.DevOps.BaseURL = "https://dev.azure.com"
	}
	if c.DevOps.DefaultIteration == "" {
		c.DevOps.DefaultIteration = "@CurrentIteration"
	}
	if c.Sources.Outlook != nil && c.Sources.Outlook.Type == "" {
		c.Sources.Outlook.Type = "csv"
	}
	if c.LLM != nil && c.LLM.Model == "" {
		c.LLM.Model = "llama3.1"
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.DevOps.Organization == "" {
		return fmt.Errorf("azure_devops.organization is required")
	}
	if c.DevOps.DefaultProject == "" {
		return fmt.Errorf("azure_devops.default_project is required")
	}
	if c.DevOps.DefaultArea == "" {
		return fmt.Errorf("azure_devops.default_area is required")
	}
	if c.DevOps.AuthorEmail == "" {
		return fmt.Errorf("azure_devops.author_email is required")
	}
	if o := c.Sources.Outlook; o != nil {
		switch o.Type {
		case "csv", "ics", "graph_api":
		default:
			return fmt.Errorf("sources.outlook.type must be csv, ics or graph_api, got %q", o.Type)
		}
	}
	if r := c.Sources.Recurring; r != nil {
		for _, tpl := range r.Templates {
			if tpl.Name == "" {
				return fmt.Errorf("recurring template with empty name")
			}
			for _, day := range tpl.Weekdays {
				if day < 0 || day > 6 {
					return fmt.Errorf("template %s: weekday %d out of range 0-6 (mon-sun)", tpl.Name, day)
				}
			}
		}
	}
	if c.DevOps.EnhanceDescs && c.LLM == nil {
		return fmt.Errorf("enhance_descriptions is set but no llm section configured")
	}
	if c.LLM != nil && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	return nil
}
