package postgrest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0-2/10", 10, false},
		{"*/0", 0, false},
		{"*/25", 25, false},
		{"items 0-2/7", 7, false},
		{"0-2/*", -1, false},
		{"", -1, false},
		{"garbage", 0, true},
		{"0-2/abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseContentRange(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadContentRange)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIlikeContains(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bike", "ilike.*bike*"},
		{"จักรยาน", "ilike.*จักรยาน*"},
		{"50%", `ilike.*50\%*`},
		{"a_b", `ilike.*a\_b*`},
		{"road bike", `ilike."*road bike*"`},
		{"(new)", `ilike."*(new)*"`},
		{`say "hi"`, `ilike."*say \"hi\"*"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ilikeContains(tt.in))
		})
	}
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "0-2", rangeHeader(0, 3))
	assert.Equal(t, "9-11", rangeHeader(9, 3))
}
