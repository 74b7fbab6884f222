package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "whole", input: "100", want: 10000},
		{name: "two decimals", input: "100.00", want: 10000},
		{name: "pence", input: "49.99", want: 4999},
		{name: "single decimal", input: "7.5", want: 750},
		{name: "zero", input: "0.00", want: 0},
		{name: "three decimals", input: "10.001", wantErr: true},
		{name: "garbage", input: "ten pounds", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMinorUnits(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, "100.00", FromMinorUnits(10000))
	assert.Equal(t, "49.99", FromMinorUnits(4999))
	assert.Equal(t, "0.05", FromMinorUnits(5))
	assert.Equal(t, "0.00", FromMinorUnits(0))
}
