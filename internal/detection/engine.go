package detection

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mcpguard/toolgate/internal/mcp"
	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Result is a single secret found in a tool argument.
type Result struct {
	Argument    string
	RuleID      string
	Description string
}

type Engine struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewEngine creates a detection engine with the gitleaks rule set. An
// empty path selects the rules bundled with gitleaks.
func NewEngine(configPath string) (*Engine, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	} else if err := v.ReadConfig(strings.NewReader(config.DefaultConfig)); err != nil {
		return nil, errors.Wrap(err, "failed to read default config")
	}

	// Parse into gitleaks config format
	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, errors.Wrap(err, "failed to translate config")
	}

	return &Engine{
		detector: detect.NewDetector(cfg),
	}, nil
}

// Detect scans every string in the call arguments, including strings
// nested in arrays and objects.
func (e *Engine) Detect(params mcp.CallToolParams) []Result {
	var results []Result

	keys := make([]string, 0, len(params.Arguments))
	for k := range params.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		walk(k, params.Arguments[k], func(path, s string) {
			e.mu.Lock()
			findings := e.detector.DetectString(s)
			e.mu.Unlock()
			for _, f := range findings {
				results = append(results, Result{
					Argument:    path,
					RuleID:      f.RuleID,
					Description: f.Description,
				})
			}
		})
	}
	return results
}

func walk(path string, v any, fn func(path, s string)) {
	switch val := v.(type) {
	case string:
		fn(path, val)
	case []any:
		for i, item := range val {
			walk(fmt.Sprintf("%s[%d]", path, i), item, fn)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(path+"."+k, val[k], fn)
		}
	}
}

// Summary formats results for an error message.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Argument, r.Description))
	}
	return strings.Join(parts, "; ")
}
