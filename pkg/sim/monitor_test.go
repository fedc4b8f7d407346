package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorCachesLastState(t *testing.T) {
	soft := NewSoftSIM("001010123456789", "1234", "")
	m := NewMonitor(soft, time.Hour)
	ctx := context.Background()

	st, err := m.SimState(ctx)
	require.NoError(t, err)
	require.Equal(t, StateUnknown, st)

	require.Equal(t, StatePinRequired, m.Refresh(ctx))
	st, _ = m.SimState(ctx)
	require.Equal(t, StatePinRequired, st)
}

func TestMonitorReportUnlocked(t *testing.T) {
	soft := NewSoftSIM("001010123456789", "1234", "")
	m := NewMonitor(soft, time.Hour)
	ctx := context.Background()
	m.Refresh(ctx)

	var changes [][2]State
	m.OnChange(func(old, cur State) { changes = append(changes, [2]State{old, cur}) })

	m.ReportSimPinUnlocked()
	st, _ := m.SimState(ctx)
	require.Equal(t, StateReady, st)
	require.Equal(t, [][2]State{{StatePinRequired, StateReady}}, changes)
}

func TestMonitorKeepsStateOnError(t *testing.T) {
	soft := NewSoftSIM("001010123456789", "", "")
	m := NewMonitor(soft, time.Hour)
	ctx := context.Background()
	m.Refresh(ctx)

	boom := errors.New("tty gone")
	soft.FailNext(boom)
	require.Equal(t, StateReady, m.Refresh(ctx))

	st, err := m.SimState(ctx)
	require.NoError(t, err)
	require.Equal(t, StateReady, st)
	require.ErrorIs(t, m.LastError(), boom)

	m.Refresh(ctx)
	require.NoError(t, m.LastError())
}

func TestMonitorErrorBeforeFirstPoll(t *testing.T) {
	soft := NewSoftSIM("001010123456789", "", "")
	m := NewMonitor(soft, time.Hour)
	ctx := context.Background()

	soft.FailNext(errors.New("no modem"))
	require.Equal(t, StateUnknown, m.Refresh(ctx))
	_, err := m.SimState(ctx)
	require.Error(t, err)
}

func TestMonitorRunStopsWithContext(t *testing.T) {
	soft := NewSoftSIM("001010123456789", "", "")
	m := NewMonitor(soft, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		st, _ := m.SimState(ctx)
		return st == StateReady
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
