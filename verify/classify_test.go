package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/certcheck/parser"
	"github.com/use-agent/certcheck/session"
)

const expectedID = "12399945678"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		want     session.Status
		mismatch bool
	}{
		{
			name:     "mask matches",
			text:     "CPF: 123.***.456-78\nMatemática 700",
			expected: expectedID,
			want:     session.StatusApproved,
		},
		{
			name:     "mask differs in visible digit",
			text:     "CPF: 123.***.456-78\nMatemática 700",
			expected: "12399945679",
			want:     session.StatusDenied,
			mismatch: true,
		},
		{
			name:     "mask present but reference malformed",
			text:     "CPF: 123.***.456-78",
			expected: "123",
			want:     session.StatusDenied,
			mismatch: true,
		},
		{
			name:     "mask beats scores",
			text:     "123.***.456-70\nMatemática\n700\nRedação\n880",
			expected: expectedID,
			want:     session.StatusDenied,
			mismatch: true,
		},
		{
			name:     "two scores without mask",
			text:     "Matemática\n700\nRedação\n880",
			expected: expectedID,
			want:     session.StatusNeedsReview,
		},
		{
			name:     "one score without mask",
			text:     "Matemática\n700",
			expected: expectedID,
			want:     session.StatusPending,
		},
		{
			name:     "empty text",
			text:     "",
			expected: expectedID,
			want:     session.StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(parser.Parse(tt.text), tt.expected)
			assert.Equal(t, tt.want, d.Status)
			assert.Equal(t, tt.mismatch, d.Mismatch)
		})
	}
}

func TestClassify_MalformedMaskStillDenies(t *testing.T) {
	bad := "12.***.456-78"
	d := Classify(parser.Result{MaskedID: &bad}, expectedID)
	assert.Equal(t, session.StatusDenied, d.Status)
}
