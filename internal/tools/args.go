package tools

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Arithmetic operations accepted by the calculate tool.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpMultiply = "multiply"
	OpDivide   = "divide"
)

const (
	DefaultScrapeUserAgent  = "Mozilla/5.0 (compatible; MCP-Scraper/1.0)"
	DefaultAnalyzeUserAgent = "Mozilla/5.0 (compatible; MCP-Analyzer/1.0)"
)

type AddArgs struct {
	A *float64 `json:"a" mapstructure:"a" validate:"required" jsonschema:"required,description=First addend"`
	B *float64 `json:"b" mapstructure:"b" validate:"required" jsonschema:"required,description=Second addend"`
}

type CalculateArgs struct {
	Operation string   `json:"operation" mapstructure:"operation" validate:"required,oneof=add subtract multiply divide" jsonschema:"required,enum=add,enum=subtract,enum=multiply,enum=divide"`
	A         *float64 `json:"a" mapstructure:"a" validate:"required" jsonschema:"required"`
	B         *float64 `json:"b" mapstructure:"b" validate:"required" jsonschema:"required"`
}

type ScrapeArgs struct {
	URL string `json:"url" mapstructure:"url" validate:"required,url" jsonschema:"required,format=uri"`
	// Selector is accepted for compatibility; extraction always covers the whole page.
	Selector    *string `json:"selector,omitempty" mapstructure:"selector" jsonschema:"description=CSS selector (currently ignored)"`
	ExtractText *bool   `json:"extract_text,omitempty" mapstructure:"extract_text" jsonschema:"default=true"`
	UserAgent   *string `json:"user_agent,omitempty" mapstructure:"user_agent" jsonschema:"default=Mozilla/5.0 (compatible; MCP-Scraper/1.0)"`
}

// WantText reports whether markup should be reduced to plain text.
func (a *ScrapeArgs) WantText() bool {
	return a.ExtractText == nil || *a.ExtractText
}

// Agent returns the User-Agent header to send.
func (a *ScrapeArgs) Agent() string {
	if a.UserAgent == nil {
		return DefaultScrapeUserAgent
	}
	return *a.UserAgent
}

type AnalyzeArgs struct {
	URL string `json:"url" mapstructure:"url" validate:"required,url" jsonschema:"required,format=uri"`
}

// ValidationError is returned when tool arguments do not match the tool's
// input shape. Handlers never see such arguments.
type ValidationError struct {
	Tool Name
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Err.Error())
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode converts raw call arguments into the argument struct of the tool
// and validates it. The returned value is one of *AddArgs, *CalculateArgs,
// *ScrapeArgs or *AnalyzeArgs.
func Decode(name Name, arguments map[string]any) (any, error) {
	var target any
	switch name {
	case Add:
		target = new(AddArgs)
	case Calculate:
		target = new(CalculateArgs)
	case ScrapeWebpage:
		target = new(ScrapeArgs)
	case AnalyzeURL:
		target = new(AnalyzeArgs)
	default:
		return nil, &UnknownToolError{Name: string(name)}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := dec.Decode(arguments); err != nil {
		return nil, &ValidationError{Tool: name, Err: err}
	}
	if err := validate.Struct(target); err != nil {
		return nil, &ValidationError{Tool: name, Err: describe(err)}
	}
	return target, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
