package pkg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatVital(t *testing.T) {
	assert.Equal(t, "", FormatVital("", "mmHg"))
	assert.Equal(t, "72", FormatVital("72", ""))
	assert.Equal(t, "120/80 mmHg", FormatVital("120/80", "mmHg"))
	assert.Equal(t, "98", FormatVital(" 98 ", ""))
}

func TestLatestByType_FirstOccurrenceWins(t *testing.T) {
	now := time.Now()
	readings := []VitalReading{
		{Type: "BP ", Value: "130/85", Unit: "mmHg", MeasuredAt: now},
		{Type: "glucose", Value: "110", Unit: "mg/dL", MeasuredAt: now.Add(-time.Hour)},
		{Type: "bp", Value: "150/95", Unit: "mmHg", MeasuredAt: now.Add(-2 * time.Hour)},
		{Type: "", Value: "1", MeasuredAt: now.Add(-3 * time.Hour)},
	}

	v := LatestByType(readings)

	assert.Equal(t, "130/85 mmHg", v[VitalBP])
	assert.Equal(t, "110 mg/dL", v[VitalGlucose])
	assert.False(t, v.Has(VitalWeight))
	assert.Equal(t, "unknown", v.Snapshot(VitalWeight))
	assert.Len(t, v, 2)
}

func TestLatestByType_Empty(t *testing.T) {
	v := LatestByType(nil)
	assert.NotNil(t, v)
	assert.Empty(t, v)
}
