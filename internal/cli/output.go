package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("неизвестный формат вывода %q (ожидается table, json или yaml)", format)
	}
}

// table - тонкая обертка над tabwriter для табличного вывода.
type table struct {
	w *tabwriter.Writer
}

func (t *table) header(cols ...string) {
	t.row(cols...)
	dashes := make([]string, len(cols))
	for i, c := range cols {
		dashes[i] = strings.Repeat("-", len(c))
	}
	t.row(dashes...)
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.w, strings.Join(cols, "\t"))
}

// print выводит v в выбранном формате. Для табличного формата
// вызывается render.
func (e *env) print(v any, render func(t *table)) error {
	switch e.output {
	case outputJSON:
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(e.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := &table{w: tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)}
		render(t)
		return t.w.Flush()
	}
}

// message выводит короткое сообщение о результате команды.
func (e *env) message(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	return e.print(map[string]string{"message": text}, func(t *table) {
		t.row(text)
	})
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
