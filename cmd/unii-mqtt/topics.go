package main

import (
	"fmt"
	"strings"
)

type Topics struct {
	prefix string
}

func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

func (t Topics) Panel() string {
	return fmt.Sprintf("%s/panel", t.prefix)
}

func (t Topics) Section(name string) string {
	return fmt.Sprintf("%s/section/%s", t.prefix, slugify(name))
}

func (t Topics) SectionCommand(name string) string {
	return fmt.Sprintf("%s/section/%s/command", t.prefix, slugify(name))
}

func (t Topics) Input(name string) string {
	return fmt.Sprintf("%s/input/%s", t.prefix, slugify(name))
}

func (t Topics) InputCommand(name string) string {
	return fmt.Sprintf("%s/input/%s/command", t.prefix, slugify(name))
}

func (t Topics) Connection() string {
	return fmt.Sprintf("%s/connection", t.prefix)
}

func (t Topics) Alarm() string {
	return fmt.Sprintf("%s/alarm", t.prefix)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteRune('_')
		}
	}
	return b.String()
}
