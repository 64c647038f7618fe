// Package rules holds the deterministic keyword rule sets used for question
// classification, meta-intent matching and the fixed reply texts.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

//go:embed rules.yaml
var defaultRules []byte

type Set struct {
	ResetKeyword    string   `yaml:"reset_keyword"`
	MedicalKeywords []string `yaml:"medical_keywords"`
	Meta            Meta     `yaml:"meta"`
	Replies         Replies  `yaml:"replies"`
}

type Meta struct {
	RepeatPhrases         []string `yaml:"repeat_phrases"`
	SubjectPhrases        []string `yaml:"subject_phrases"`
	PreviousAnswerPhrases []string `yaml:"previous_answer_phrases"`
}

type Replies struct {
	ResetConfirmation string `yaml:"reset_confirmation"`
	RepeatFound       string `yaml:"repeat_found"`
	RepeatMissing     string `yaml:"repeat_missing"`
	SubjectFound      string `yaml:"subject_found"`
	SubjectUnknown    string `yaml:"subject_unknown"`
	SubjectNoAnswer   string `yaml:"subject_no_answer"`
	GenerationApology string `yaml:"generation_apology"`
	LabelWebQuery     string `yaml:"label_web_query"`
}

// Default returns the embedded rule set.
func Default() Set {
	set, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded rule set is invalid: %v", err))
	}
	return set
}

// Load reads a rule set override from path. An empty path yields the embedded set.
// Sections missing from the override keep their embedded values.
func Load(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, domain.WrapError(domain.ErrConfiguration, "load rules", err)
	}
	set := Default()
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Set{}, domain.WrapError(domain.ErrConfiguration, "parse rules", err)
	}
	set.normalize()
	if err := set.validate(); err != nil {
		return Set{}, domain.WrapError(domain.ErrConfiguration, "validate rules", err)
	}
	return set, nil
}

func Parse(data []byte) (Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Set{}, fmt.Errorf("parse rules yaml: %w", err)
	}
	set.normalize()
	if err := set.validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

func (s *Set) normalize() {
	s.ResetKeyword = strings.ToLower(strings.TrimSpace(s.ResetKeyword))
	s.MedicalKeywords = lowerAll(s.MedicalKeywords)
	s.Meta.RepeatPhrases = lowerAll(s.Meta.RepeatPhrases)
	s.Meta.SubjectPhrases = lowerAll(s.Meta.SubjectPhrases)
	s.Meta.PreviousAnswerPhrases = lowerAll(s.Meta.PreviousAnswerPhrases)
}

func (s Set) validate() error {
	switch {
	case s.ResetKeyword == "":
		return fmt.Errorf("reset_keyword is required")
	case len(s.MedicalKeywords) == 0:
		return fmt.Errorf("medical_keywords must not be empty")
	case s.Replies.GenerationApology == "":
		return fmt.Errorf("replies.generation_apology is required")
	case strings.Count(s.Replies.RepeatFound, "%s") != 1:
		return fmt.Errorf("replies.repeat_found needs exactly one %%s")
	case strings.Count(s.Replies.SubjectFound, "%s") != 2:
		return fmt.Errorf("replies.subject_found needs exactly two %%s")
	case strings.Count(s.Replies.LabelWebQuery, "%s") != 2:
		return fmt.Errorf("replies.label_web_query needs exactly two %%s")
	}
	return nil
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(domain.NormalizeName(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
