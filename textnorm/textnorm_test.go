package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ciências da Natureza", "ciencias da natureza"},
		{"MATEMÁTICA e suas Tecnologias", "matematica e suas tecnologias"},
		{"Redação", "redacao"},
		{"Nome do Participante", "nome do participante"},
		{"", ""},
		{"650,5", "650,5"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_PrecomposedAndDecomposed(t *testing.T) {
	precomposed := "Ci\u00eancias"
	decomposed := "Cie\u0302ncias"
	assert.Equal(t, Normalize(precomposed), Normalize(decomposed))
}
