package mclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedTimerFiresOnlyAfterDeadline(t *testing.T) {
	clock := new(Simulated)
	timer := clock.NewTimer(100 * time.Millisecond)

	clock.Run(50 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Run(60 * time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire once its deadline elapsed")
	}
}

func TestSimulatedTimerStopPreventsFire(t *testing.T) {
	clock := new(Simulated)
	timer := clock.NewTimer(10 * time.Millisecond)
	require.True(t, timer.Stop())

	clock.Run(20 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("stopped timer must not fire")
	default:
	}
}

func TestSimulatedNowMonotonic(t *testing.T) {
	clock := new(Simulated)
	start := clock.Now()
	clock.Run(5 * time.Second)
	require.Equal(t, start+AbsTime(5*time.Second), clock.Now())
}
