package runlog

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

func TestBuffer_KeepsMostRecentWithinCapacity(t *testing.T) {
	b := NewBuffer(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish(domain.LogEvent{Message: fmt.Sprintf("m%d", i)})
	}

	got := b.Recent(0, "")
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Message)
	assert.Equal(t, "m4", got[2].Message)
}

func TestBuffer_RecentFiltersAndLimits(t *testing.T) {
	b := NewBuffer(10)
	defer b.Close()

	b.Publish(domain.LogEvent{Message: "a1", ProfileID: "a"})
	b.Publish(domain.LogEvent{Message: "b1", ProfileID: "b"})
	b.Publish(domain.LogEvent{Message: "a2", ProfileID: "a"})
	b.Publish(domain.LogEvent{Message: "a3", ProfileID: "a"})

	got := b.Recent(2, "a")
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].Message)
	assert.Equal(t, "a3", got[1].Message)
}

func TestBuffer_ConcurrentPublishers(t *testing.T) {
	b := NewBuffer(1000)
	defer b.Close()

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(domain.LogEvent{Message: "x", ProfileID: fmt.Sprintf("p%d", p)})
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, b.Recent(0, ""), 400)
	assert.Len(t, b.Recent(0, "p3"), 50)
}

func TestBuffer_PublishAfterCloseDoesNotBlock(t *testing.T) {
	b := NewBuffer(2)
	b.Close()
	b.Publish(domain.LogEvent{Message: "late"})
	assert.Nil(t, b.Recent(0, ""))
}

func TestRecorder_OrdersEventsAndForwards(t *testing.T) {
	var forwarded []domain.LogEvent
	buf := &bytes.Buffer{}
	rec := NewRecorder("main", "job-1", func(e domain.LogEvent) { forwarded = append(forwarded, e) }, zerolog.New(buf))

	rec.Info("starting %s", "sync")
	rec.Error("account %d failed", 2)
	rec.Success("done")

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, domain.LevelInfo, events[0].Level)
	assert.Equal(t, "starting sync", events[0].Message)
	assert.Equal(t, domain.LevelError, events[1].Level)
	assert.Equal(t, "account 2 failed", events[1].Message)
	assert.Equal(t, domain.LevelSuccess, events[2].Level)
	assert.Equal(t, "main", events[2].ProfileID)
	assert.Equal(t, "job-1", events[2].JobID)

	assert.Equal(t, events, forwarded)
	assert.Contains(t, buf.String(), `"profile_id":"main"`)
}
