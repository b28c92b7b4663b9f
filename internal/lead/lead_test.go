package lead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRequestType(t *testing.T) {
	tests := []struct {
		in   string
		want RequestType
	}{
		{"sales", RequestTypeSales},
		{"SALES", RequestTypeSales},
		{"  Sales  ", RequestTypeSales},
		{"generic", RequestTypeGeneric},
		{"", RequestTypeGeneric},
		{"support", RequestTypeGeneric},
		{"marketing", RequestTypeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRequestType(tt.in))
		})
	}
}

func TestExtraction_Empty(t *testing.T) {
	assert.True(t, Extraction{}.Empty())
	assert.True(t, Extraction{Metadata: map[string]any{"k": "v"}}.Empty())
	assert.False(t, Extraction{ContactName: "Jordan Li"}.Empty())
	assert.False(t, Extraction{Email: "jordan@example.com"}.Empty())
	assert.False(t, Extraction{Mobile: "+65 8123 4567"}.Empty())
	assert.False(t, Extraction{Country: "Singapore"}.Empty())
}
