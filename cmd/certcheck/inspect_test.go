package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const savedPage = `Resultado ENEM 2022
Nome: JOSE PEREIRA
CPF: 123.***.456-78
Linguagens, Códigos e suas Tecnologias
612,4
Matemática e suas Tecnologias
700,0`

func TestInspect_Text(t *testing.T) {
	r := inspect(savedPage, "12399945678", false)

	assert.Equal(t, "approved", r.Status)
	assert.False(t, r.Mismatch)
	assert.Equal(t, "123.***.456-**", r.Expected)
	require.NotNil(t, r.Result.Year)
	assert.Equal(t, 2022, *r.Result.Year)
	assert.Empty(t, r.Layout)
}

func TestInspect_Mismatch(t *testing.T) {
	r := inspect(savedPage, "98799945678", false)
	assert.Equal(t, "denied", r.Status)
	assert.True(t, r.Mismatch)
}

func TestInspect_HTML(t *testing.T) {
	html := `<html><body><p>CPF: 123.***.456-78</p><script>var x = "999.***.999-99";</script></body></html>`
	r := inspect(html, "12399945678", true)

	assert.Equal(t, "approved", r.Status)
	assert.Len(t, r.Layout, 16)
}

func TestInspectCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.txt")
	require.NoError(t, os.WriteFile(path, []byte(savedPage), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", "--file", path, "--expected", "12399945678"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		inspectFile, inspectExpected, inspectHTML = "-", "", false
	})

	require.NoError(t, rootCmd.Execute())

	var got report
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "approved", got.Status)
}

func TestReadInput_Stdin(t *testing.T) {
	got, err := readInput(strings.NewReader("abc"), "-")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
