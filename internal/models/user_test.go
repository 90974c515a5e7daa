package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_Lifecycle(t *testing.T) {
	tests := []struct {
		name     string
		state    LifecycleState
		expected LifecycleView
	}{
		{
			name:     "no subscription yet",
			state:    StateNone,
			expected: LifecycleView{State: StateNone},
		},
		{
			name:     "trial running",
			state:    StateTrialActive,
			expected: LifecycleView{State: StateTrialActive, IsTrialRunning: true},
		},
		{
			name:     "cancelled during trial",
			state:    StateTrialCancelled,
			expected: LifecycleView{State: StateTrialCancelled, IsTrialCancel: true},
		},
		{
			name:     "plan running",
			state:    StatePlanActive,
			expected: LifecycleView{State: StatePlanActive, IsPlanRunning: true},
		},
		{
			// Отмена после пробного окна не считается отменой в пробном окне.
			name:  "cancelled during plan",
			state: StatePlanCancelled,
			expected: LifecycleView{
				State:         StatePlanCancelled,
				IsPlanRunning: true,
				IsPlanCancel:  true,
			},
		},
		{
			name:     "plan ended",
			state:    StateEnded,
			expected: LifecycleView{State: StateEnded},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{State: tt.state}
			assert.Equal(t, tt.expected, u.Lifecycle())
		})
	}
}
