package resources

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	labelsFile   = "ui_labels.json"
	sectionsFile = "sections.json"
	textsFile    = "texts.json"
	quizFile     = "quiz.yaml"
)

// stringMapSchema validates the flat key-to-string resource files.
const stringMapSchema = `{
	"type": "object",
	"minProperties": 1,
	"additionalProperties": {"type": "string", "minLength": 1}
}`

const sectionsSchema = `{
	"type": "object",
	"minProperties": 1,
	"additionalProperties": {
		"type": "object",
		"required": ["title", "hello"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"hello": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}
}`

// Label and text keys the bot dereferences. Their absence is a startup
// error rather than an empty button at runtime.
var requiredLabels = []string{
	"btn_swimming", "btn_running", "btn_triathlon",
	"btn_write_coordinator", "btn_lesson_remainder",
	"btn_sw_level", "btn_sw_cert", "btn_sw_prep", "btn_sw_take",
	"btn_back", "btn_level_details",
}

var requiredTexts = []string{
	"title_root", "section_prompt", "ask_phone", "invalid_phone", "searching_client",
	"client_not_found", "service_unavailable",
	"quiz_expired", "quiz_result_header", "quiz_result_footer",
	"sw_cert", "sw_prep", "sw_take",
}

// Load reads all resource files from dir and validates them.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{}

	if err := loadJSON(filepath.Join(dir, labelsFile), stringMapSchema, &b.Labels); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, sectionsFile), sectionsSchema, &b.Sections); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, textsFile), stringMapSchema, &b.Texts); err != nil {
		return nil, err
	}
	if err := loadQuiz(filepath.Join(dir, quizFile), &b.Quiz); err != nil {
		return nil, err
	}

	for _, key := range requiredLabels {
		if b.Labels[key] == "" {
			return nil, fmt.Errorf("%s: missing label %q", labelsFile, key)
		}
	}
	for _, key := range requiredTexts {
		if b.Texts[key] == "" {
			return nil, fmt.Errorf("%s: missing text %q", textsFile, key)
		}
	}
	if _, ok := b.Sections["swimming"]; !ok {
		return nil, fmt.Errorf("%s: missing %q section", sectionsFile, "swimming")
	}
	if b.Quiz.TTLSeconds <= 0 {
		return nil, fmt.Errorf("%s: ttl_seconds must be positive", quizFile)
	}

	slog.Info("resources loaded",
		"dir", dir,
		"labels", len(b.Labels),
		"sections", len(b.Sections),
		"texts", len(b.Texts),
		"questions", len(b.Quiz.Questions),
	)
	return b, nil
}

func loadJSON(path, schema string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid %s: %s", filepath.Base(path), strings.Join(problems, "; "))
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadQuiz(path string, dst *QuizConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
