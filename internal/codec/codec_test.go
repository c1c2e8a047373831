package codec

import (
	"testing"
	"time"

	"fisio-telemetry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidFrame(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	reading, err := Decode([]byte(`{"flex": 0.62, "emg": 1.4}`), at)
	require.NoError(t, err)

	assert.Equal(t, 0.62, reading.Flex)
	assert.Equal(t, 1.4, reading.Emg)
	assert.Equal(t, at, reading.Timestamp)

	samples := reading.Samples()
	assert.Equal(t, models.ChannelFlex, samples[0].Channel)
	assert.Equal(t, 0.62, samples[0].Value)
	assert.Equal(t, models.ChannelEmg, samples[1].Channel)
	assert.Equal(t, 1.4, samples[1].Value)
	assert.Equal(t, at, samples[1].Timestamp)
}

func TestDecode_ZeroValuesAreValid(t *testing.T) {
	reading, err := Decode([]byte(`{"flex": 0, "emg": 0}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, reading.Flex)
	assert.Equal(t, 0.0, reading.Emg)
}

func TestDecode_ExtraFieldsIgnored(t *testing.T) {
	_, err := Decode([]byte(`{"flex": 1, "emg": 2, "battery": 87}`), time.Now())
	assert.NoError(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `flex=1;emg=2`},
		{"missing flex", `{"emg": 1.2}`},
		{"missing emg", `{"flex": 0.5}`},
		{"non-numeric flex", `{"flex": "high", "emg": 1.0}`},
		{"non-numeric emg", `{"flex": 0.5, "emg": null}`},
		{"empty payload", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload), time.Now())
			require.Error(t, err)

			var codecErr *CodecError
			assert.ErrorAs(t, err, &codecErr)
		})
	}
}
