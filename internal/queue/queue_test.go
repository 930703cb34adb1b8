package queue

import (
	"testing"
	"time"

	"github.com/nexusrag/core/internal/coreerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_RunsJob(t *testing.T) {
	q := New(2, 10)
	f, err := q.Submit(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)

	select {
	case r := <-f.Done:
		assert.NoError(t, r.Err)
		assert.Equal(t, 42, r.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestSubmit_RejectsWhenBacklogFull(t *testing.T) {
	q := New(1, 1)
	block := make(chan struct{})
	_, err := q.Submit(func() (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	_, err = q.Submit(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	_, err = q.Submit(func() (interface{}, error) { return nil, nil })
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.QueueFull))
	close(block)
}

func TestBound_RunningPlusPending(t *testing.T) {
	maxConcurrency, maxBacklog := 2, 3
	q := New(maxConcurrency, maxBacklog)
	block := make(chan struct{})

	for i := 0; i < maxConcurrency+maxBacklog; i++ {
		_, err := q.Submit(func() (interface{}, error) {
			<-block
			return nil, nil
		})
		require.NoError(t, err)
	}
	_, err := q.Submit(func() (interface{}, error) { return nil, nil })
	assert.True(t, coreerrors.Is(err, coreerrors.QueueFull))
	close(block)
}

func TestClear_RejectsPending(t *testing.T) {
	q := New(1, 5)
	block := make(chan struct{})
	_, err := q.Submit(func() (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	f, err := q.Submit(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	q.Clear()

	select {
	case r := <-f.Done:
		assert.True(t, coreerrors.Is(r.Err, coreerrors.QueueCleared))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cleared job")
	}
	close(block)
}

func TestClose_RejectsPendingAndFurtherSubmits(t *testing.T) {
	q := New(1, 5)
	block := make(chan struct{})
	_, err := q.Submit(func() (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	f, err := q.Submit(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	q.Close()

	select {
	case r := <-f.Done:
		assert.True(t, coreerrors.Is(r.Err, coreerrors.QueueCleared))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cleared job")
	}
	close(block)

	_, err = q.Submit(func() (interface{}, error) { return nil, nil })
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.QueueCleared))
}

func TestFIFOOrdering(t *testing.T) {
	q := New(1, 10)
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		f, err := q.Submit(func() (interface{}, error) {
			order = append(order, i)
			return nil, nil
		})
		require.NoError(t, err)
		if i == 4 {
			go func() {
				<-f.Done
				close(done)
			}()
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
