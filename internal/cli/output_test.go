//nolint:testpackage // Это тесты в том же пакете для доступа к приватным компонентам
package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "Короткая", in: "Diseño", n: 10, want: "Diseño"},
		{name: "Обрезка", in: "Arquitectura y Urbanismo", n: 8, want: "Arquite…"},
		{name: "ПробелыСхлопываются", in: "Muy\n  buena", n: 20, want: "Muy buena"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}
}

func TestPrint_Formats(t *testing.T) {
	v := map[string]int{"total": 3}
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "Таблица", output: outputTable, want: "total  3\n"},
		{name: "JSON", output: outputJSON, want: "{\n  \"total\": 3\n}\n"},
		{name: "YAML", output: outputYAML, want: "total: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			e := &env{output: tt.output, out: &out}
			require.NoError(t, e.print(v, func(t *table) { t.row("total", "3") }))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestImageDataURL(t *testing.T) {
	dir := t.TempDir()
	// Минимальная сигнатура PNG
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	pngPath := filepath.Join(dir, "avatar.png")
	require.NoError(t, os.WriteFile(pngPath, png, 0o600))
	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("hola"), 0o600))

	got, err := imageDataURL(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgoAAAAA", got)

	got, err = imageDataURL("data:image/jpeg;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", got)

	_, err = imageDataURL(txtPath)
	assert.Error(t, err)

	_, err = imageDataURL(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
