package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestDecodeDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    WorkDescriptor
		wantErr bool
	}{
		{
			name: "json without bounds",
			raw:  `{"panel_name":"acme"}`,
			want: WorkDescriptor{PanelName: "acme"},
		},
		{
			name: "json with bounds",
			raw:  `{"panel_name":"acme","start_uid":1,"end_uid":1100}`,
			want: WorkDescriptor{PanelName: "acme", StartUID: int64p(1), EndUID: int64p(1100)},
		},
		{
			name: "legacy literal",
			raw:  `{'panel_name': 'acme', 'start_uid': 1, 'end_uid': 220}`,
			want: WorkDescriptor{PanelName: "acme", StartUID: int64p(1), EndUID: int64p(220)},
		},
		{
			name: "legacy literal with None",
			raw:  `{'panel_name': 'acme', 'end_uid': None}`,
			want: WorkDescriptor{PanelName: "acme"},
		},
		{
			name:    "missing panel",
			raw:     `{"start_uid":1}`,
			wantErr: true,
		},
		{
			name:    "inverted range",
			raw:     `{"panel_name":"acme","start_uid":10,"end_uid":2}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			raw:     `not a descriptor`,
			wantErr: true,
		},
		{
			name:    "unterminated literal",
			raw:     `{'panel_name: 'acme}`,
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDescriptor(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedDescriptor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDescriptor(t *testing.T) {
	raw, err := EncodeDescriptor(NewWorkDescriptor("acme").WithRange(1, 110))
	require.NoError(t, err)
	assert.JSONEq(t, `{"panel_name":"acme","start_uid":1,"end_uid":110}`, raw)

	raw, err = EncodeDescriptor(NewWorkDescriptor("acme"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"panel_name":"acme"}`, raw)

	_, err = EncodeDescriptor(WorkDescriptor{})
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}
