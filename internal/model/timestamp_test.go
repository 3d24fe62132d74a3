package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2025-03-10T09:00:00Z"`, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{`"2025-03-10T09:00:00.1234567"`, time.Date(2025, 3, 10, 9, 0, 0, 123456700, time.UTC)},
		{`"2025-03-10T09:00:00"`, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{`"2025-03-10 09:00:00"`, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{`"2025-03-10"`, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
		{`""`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestamp_UnmarshalJSONRejects(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`12`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`"10/03/2025"`), &ts))
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(NewTimestamp(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-10T09:00:00Z"`, string(b))

	b, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(b))
}
