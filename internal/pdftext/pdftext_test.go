package pdftext

import (
	"context"
	"testing"
)

func TestExtractUnreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"not a pdf", []byte("this is plain text, not a PDF")},
		{"truncated header", []byte("%PDF-1.4\n1 0 obj\n<<")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (PDF{}).Extract(context.Background(), tt.data); got != "" {
				t.Errorf("Extract = %q, want empty", got)
			}
		})
	}
}
