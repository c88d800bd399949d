package treatment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func teeth(statuses ...ToothStatus) []ToothTreatment {
	out := make([]ToothTreatment, len(statuses))
	for i, s := range statuses {
		out[i] = ToothTreatment{ToothNumber: []string{"11", "12", "13", "14"}[i], TreatmentName: "Filling", Status: s}
	}
	return out
}

func TestDeriveCompletion(t *testing.T) {
	assert.False(t, DeriveCompletion(nil))
	assert.False(t, DeriveCompletion(teeth(ToothDone, ToothOngoing)))
	assert.False(t, DeriveCompletion(teeth(ToothPending)))
	assert.True(t, DeriveCompletion(teeth(ToothDone)))
	assert.True(t, DeriveCompletion(teeth(ToothDone, ToothDone, ToothDone)))
}

func TestDeriveCompletionIsIdempotent(t *testing.T) {
	for _, snapshot := range [][]ToothTreatment{
		nil,
		teeth(ToothDone, ToothOngoing),
		teeth(ToothDone, ToothDone),
	} {
		assert.Equal(t, DeriveCompletion(snapshot), DeriveCompletion(snapshot))
	}
}

func TestTransition(t *testing.T) {
	assert.True(t, Transition(teeth(ToothDone, ToothOngoing), teeth(ToothDone, ToothDone)))
	assert.False(t, Transition(teeth(ToothDone, ToothDone), teeth(ToothDone, ToothDone)))
	assert.False(t, Transition(teeth(ToothDone, ToothDone), teeth(ToothDone, ToothPending)))
	assert.False(t, Transition(teeth(ToothPending), teeth(ToothOngoing)))
}

func TestValidToothNumber(t *testing.T) {
	for _, ok := range []string{"11", "18", "21", "38", "48", "51", "55", "85"} {
		assert.True(t, ValidToothNumber(ok), ok)
	}
	for _, bad := range []string{"", "1", "10", "19", "49", "56", "90", "111", "a1", "00"} {
		assert.False(t, ValidToothNumber(bad), bad)
	}
}
