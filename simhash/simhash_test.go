package simhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout_SameTemplateDifferentData(t *testing.T) {
	a := `<html><body><table><tr><td>Matemática</td><td>701,2</td></tr></table><p>MARIA</p></body></html>`
	b := `<html><body><table><tr><td>Redação</td><td>880</td></tr></table><p>JOSÉ</p></body></html>`

	assert.Equal(t, Layout(a), Layout(b))
}

func TestLayout_DifferentStructures(t *testing.T) {
	form := `<html><body><form><input><input><img><button>Consultar</button></form></body></html>`
	result := `<html><body><div><h1>Resultado</h1><table><tr><td>A</td><td>B</td></tr></table></div></body></html>`

	assert.GreaterOrEqual(t, Distance(Layout(form), Layout(result)), 3)
}

func TestLayout_Empty(t *testing.T) {
	assert.Equal(t, uint64(0), Layout(""))
	assert.Equal(t, uint64(0), Layout("plain text, no tags"))
}

func TestLayout_FewTags(t *testing.T) {
	assert.NotEqual(t, uint64(0), Layout("<br/>"))
	assert.Equal(t, Layout("<p>x</p>"), Layout("<p>y</p>"))
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xF0, 0xF0, 0},
		{"all bits", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func TestShingles(t *testing.T) {
	assert.Equal(t, []string{"a>b>c", "b>c>d"}, shingles([]string{"a", "b", "c", "d"}))
	assert.Nil(t, shingles([]string{"a", "b"}))
}
