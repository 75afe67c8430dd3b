package main

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type Config struct {
	Host         string   `env:"HOST,notEmpty"`
	Port         string   `env:"PORT"               envDefault:"25301"`
	SharedKey    string   `env:"SHARED_KEY,notEmpty"`
	UserCode     string   `env:"USER_CODE"`
	SectionNames []string `env:"SECTION_NAMES"`
	InputNames   []string `env:"INPUT_NAMES"`
	IgnoreInputs []int    `env:"IGNORE_INPUTS"`
	Address      string   `env:"LISTEN"             envDefault:":9102"`
}

// sectionName prefers the locally configured name, by position, over the
// one the panel reports.
func (c Config) sectionName(id uint16, panelName string) string {
	if name := override(c.SectionNames, id); name != "" {
		return name
	}
	if panelName != "" {
		return panelName
	}
	return fmt.Sprintf("Section %d", id)
}

func (c Config) inputName(id uint16, panelName string) string {
	if name := override(c.InputNames, id); name != "" {
		return name
	}
	if panelName != "" {
		return panelName
	}
	return fmt.Sprintf("Input %d", id)
}

func (c Config) ignored(id uint16) bool {
	return slices.Contains(c.IgnoreInputs, int(id))
}

func override(names []string, id uint16) string {
	if int(id) >= 1 && int(id) <= len(names) {
		return names[id-1]
	}
	return ""
}
