package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultHTML = `<html><head><title>INEP</title><style>.x{}</style></head>
<body>
<header>Autenticidade</header>
<div id="resultado">
  <p>Nome do Participante: <b>MARIA DA SILVA</b></p>
  <p>CPF: 123.***.456-78</p>
  <table>
    <tr><th>Área</th><th>Nota</th></tr>
    <tr><td>Matemática</td><td>701,25</td></tr>
    <tr><td>Redação</td><td>880</td></tr>
  </table>
</div>
<script>var secret = "ignored";</script>
</body></html>`

func TestVisibleText(t *testing.T) {
	text := VisibleText(resultHTML)

	assert.Contains(t, text, "Nome do Participante: MARIA DA SILVA")
	assert.Contains(t, text, "CPF: 123.***.456-78")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, ".x{}")

	lines := strings.Split(text, "\n")
	assert.Contains(t, lines, "Matemática")
	assert.Contains(t, lines, "701,25")
	for _, l := range lines {
		assert.NotEmpty(t, l)
	}
}

func TestVisibleText_Empty(t *testing.T) {
	assert.Equal(t, "", VisibleText(""))
}

func TestScope(t *testing.T) {
	t.Run("matching selector", func(t *testing.T) {
		out, err := Scope(resultHTML, "#resultado table")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "<table>"))
		assert.NotContains(t, out, "Autenticidade")
	})

	t.Run("no match returns input", func(t *testing.T) {
		out, err := Scope(resultHTML, "#missing")
		require.NoError(t, err)
		assert.Equal(t, resultHTML, out)
	})

	t.Run("invalid selector", func(t *testing.T) {
		_, err := Scope(resultHTML, "div[")
		assert.Error(t, err)
	})
}

func TestTranscript(t *testing.T) {
	c := New("")
	md := c.Transcript(resultHTML, "https://enem.inep.gov.br")

	assert.Contains(t, md, "MARIA DA SILVA")
	assert.Contains(t, md, "701,25")
	assert.Contains(t, md, "|")
	assert.NotContains(t, md, "secret")
}

func TestTranscript_Scoped(t *testing.T) {
	c := New("#resultado")
	md := c.Transcript(resultHTML, "https://enem.inep.gov.br")

	assert.Contains(t, md, "MARIA DA SILVA")
	assert.NotContains(t, md, "Autenticidade")
}

func TestTranscript_InvalidSelectorFallsBack(t *testing.T) {
	c := New("div[")
	assert.Contains(t, c.Transcript(resultHTML, "https://enem.inep.gov.br"), "Autenticidade")
}

func TestTranscript_Empty(t *testing.T) {
	assert.Equal(t, "", New("").Transcript("  ", "https://enem.inep.gov.br"))
}
