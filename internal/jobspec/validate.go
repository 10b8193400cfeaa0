package jobspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/config"
)

const ProviderPolly = "aws-polly"

var bitratePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)

// Issue is one field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// ValidationError lists everything wrong with a job document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "invalid job spec: " + strings.Join(parts, "; ")
}

// Messages returns one "path: message" line per issue.
func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.String()
	}
	return out
}

// IssuesOf extracts the issues from a Parse error.
func IssuesOf(err error) ([]Issue, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Issues, true
	}
	return nil, false
}

// Parser validates job documents and fills optional fields from Defaults.
type Parser struct {
	validate *validator.Validate
	defaults config.Defaults
}

func NewParser(defaults config.Defaults) *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if p := fld.Tag.Get("path"); p != "" {
			return p
		}
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("polly_voice", func(fl validator.FieldLevel) bool {
		return pollyVoices[fl.Field().String()]
	})
	_ = v.RegisterValidation("polly_language", func(fl validator.FieldLevel) bool {
		return pollyLanguages[fl.Field().String()]
	})
	_ = v.RegisterValidation("bitrate", func(fl validator.FieldLevel) bool {
		return bitratePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("filename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
	})
	_ = v.RegisterValidation("destination", func(fl validator.FieldLevel) bool {
		dest := fl.Field().String()
		if strings.HasPrefix(dest, "s3://") {
			u, err := url.Parse(dest)
			return err == nil && u.Host != ""
		}
		return !strings.Contains(dest, "://")
	})
	_ = v.RegisterValidation("maxjsonbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		data, err := json.Marshal(fl.Field().Interface())
		return err == nil && len(data) <= limit
	})
	v.RegisterStructValidation(timelineEventLevel, TimelineEvent{})
	v.RegisterStructValidation(jobSpecLevel, JobSpec{})

	return &Parser{validate: v, defaults: defaults}
}

// Parse decodes, validates and applies defaults. Failures are classified as
// validation errors and carry a *ValidationError.
func (p *Parser) Parse(raw []byte) (*JobSpec, error) {
	var spec JobSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, apperr.Validation("parse job spec", &ValidationError{Issues: []Issue{decodeIssue(err)}})
	}
	if err := p.Validate(&spec); err != nil {
		return nil, err
	}
	p.applyDefaults(&spec)
	return &spec, nil
}

// Validate checks an already decoded spec.
func (p *Parser) Validate(spec *JobSpec) error {
	err := p.validate.Struct(spec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("validate job spec", err)
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
	}
	return apperr.Validation("validate job spec", &ValidationError{Issues: issues})
}

func (p *Parser) applyDefaults(spec *JobSpec) {
	d := p.defaults
	if bg := spec.BackgroundMusic; bg != nil {
		bg.Loop = orBool(bg.Loop, d.MusicLoop)
		bg.Volume = orFloat(bg.Volume, d.MusicVolume)
		bg.CrossfadeDuration = orFloat(bg.CrossfadeDuration, d.CrossfadeDuration)
	}
	for i := range spec.Timeline {
		ev := &spec.Timeline[i]
		switch data := ev.Data().(type) {
		case *TTSData:
			if data.Provider == "" {
				data.Provider = ProviderPolly
			}
			if data.ProviderConfig == nil {
				data.ProviderConfig = &ProviderConfig{}
			}
			pc := data.ProviderConfig
			pc.VoiceID = orString(pc.VoiceID, d.VoiceID)
			pc.Engine = orString(pc.Engine, d.Engine)
			pc.TextType = orString(pc.TextType, d.TextType)
			data.Volume = orFloat(data.Volume, d.TTSVolume)
			data.DuckingFadeDuration = orFloat(data.DuckingFadeDuration, d.DuckingFadeDuration)
		case *AudioData:
			data.Volume = orFloat(data.Volume, d.AudioVolume)
			data.DuckingFadeDuration = orFloat(data.DuckingFadeDuration, d.DuckingFadeDuration)
		}
	}
	if spec.Output.Encoding == nil {
		spec.Output.Encoding = &Encoding{}
	}
	spec.Output.Encoding.Preset = orString(spec.Output.Encoding.Preset, d.Preset)
	if wh := spec.Webhook(); wh != nil && wh.Method == "" {
		wh.Method = "POST"
	}
}

func timelineEventLevel(sl validator.StructLevel) {
	ev := sl.Current().Interface().(TimelineEvent)
	switch ev.Type {
	case EventTTS:
		if ev.TTS == nil {
			sl.ReportError(ev.TTS, "data", "TTS", "required", "")
		}
	case EventAudio:
		if ev.Audio == nil {
			sl.ReportError(ev.Audio, "data", "Audio", "required", "")
		}
	}
}

// jobSpecLevel enforces that every referenced audio asset is declared.
func jobSpecLevel(sl validator.StructLevel) {
	spec := sl.Current().Interface().(JobSpec)
	declared := make(map[string]bool, len(spec.Assets.Audio))
	for _, a := range spec.Assets.Audio {
		declared[a.ID] = true
	}
	if spec.BackgroundMusic != nil {
		for i, id := range spec.BackgroundMusic.Playlist {
			if id != "" && !declared[id] {
				sl.ReportError(id, fmt.Sprintf("backgroundMusic.playlist[%d]", i), "Playlist", "asset_ref", id)
			}
		}
	}
	for i, ev := range spec.Timeline {
		if ev.Type == EventAudio && ev.Audio != nil && ev.Audio.AssetID != "" && !declared[ev.Audio.AssetID] {
			sl.ReportError(ev.Audio.AssetID, fmt.Sprintf("timeline[%d].data.assetId", i), "AssetID", "asset_ref", ev.Audio.AssetID)
		}
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "unique":
		return "ids must be unique"
	case "http_url":
		return "must be an http(s) URL"
	case "asset_ref":
		return fmt.Sprintf("references unknown audio asset %q", fe.Param())
	case "polly_voice":
		return fmt.Sprintf("unsupported voice %q", fe.Value())
	case "polly_language":
		return fmt.Sprintf("unsupported language code %q", fe.Value())
	case "bitrate":
		return "must look like 5000k or 2M"
	case "filename":
		return "must be a plain file name"
	case "destination":
		return "must be an s3://bucket/prefix URI or a local directory"
	case "maxjsonbytes":
		return "must serialize to at most " + fe.Param() + " bytes"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func decodeIssue(err error) Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Issue{Field: typeErr.Field, Message: "must be of type " + typeErr.Type.String()}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Issue{Message: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	}
	return Issue{Message: err.Error()}
}

func orFloat(p *float64, def float64) *float64 {
	if p != nil {
		return p
	}
	return &def
}

func orBool(p *bool, def bool) *bool {
	if p != nil {
		return p
	}
	return &def
}

func orString(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
