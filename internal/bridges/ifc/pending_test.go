package ifc

import (
	"errors"
	"testing"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
)

func TestPendingList_Timeout(t *testing.T) {
	list := newPendingList()
	cmd := newCommand("GET LAMP", kindGet, fireplace.Lamp)

	fired := make(chan struct{}, 1)
	list.register(cmd, 50*time.Millisecond, func(*pendingRequest) {
		fired <- struct{}{}
	})

	select {
	case err := <-cmd.done:
		if !errors.Is(err, ErrCommandTimeout) {
			t.Errorf("done = %v, want ErrCommandTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onTimeout callback never ran")
	}

	if _, gets := list.counts(); gets != 0 {
		t.Errorf("timed-out request still pending, gets = %d", gets)
	}
}

func TestPendingList_CompleteBeatsTimeout(t *testing.T) {
	list := newPendingList()
	cmd := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)

	list.register(cmd, 100*time.Millisecond, func(*pendingRequest) {
		t.Error("timeout fired after completion")
	})

	if _, ok := list.completeOldestAck(nil); !ok {
		t.Fatal("completeOldestAck() = false with one pending")
	}

	select {
	case err := <-cmd.done:
		if err != nil {
			t.Errorf("done = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("completion never signalled")
	}

	// Give a stale timer a chance to misfire.
	time.Sleep(200 * time.Millisecond)
}

func TestPendingList_FIFOOrder(t *testing.T) {
	list := newPendingList()

	first := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)
	second := newCommand("SET FLAME ON", kindSet, fireplace.Flame)
	list.register(first, time.Second, nil)
	list.register(second, time.Second, nil)

	list.completeOldestAck(nil)
	list.completeOldestAck(ErrCommandRejected)

	if err := <-first.done; err != nil {
		t.Errorf("first done = %v, want nil (oldest completes first)", err)
	}
	if err := <-second.done; !errors.Is(err, ErrCommandRejected) {
		t.Errorf("second done = %v, want ErrCommandRejected", err)
	}
}

func TestPendingList_FailAll(t *testing.T) {
	list := newPendingList()

	set := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)
	get := newCommand("GET FLAME", kindGet, fireplace.Flame)
	list.register(set, time.Minute, nil)
	list.register(get, time.Minute, nil)

	list.failAll(ErrConnectionLost)

	for _, cmd := range []*command{set, get} {
		if err := <-cmd.done; !errors.Is(err, ErrConnectionLost) {
			t.Errorf("done = %v, want ErrConnectionLost", err)
		}
	}

	acks, gets := list.counts()
	if acks != 0 || gets != 0 {
		t.Errorf("counts after failAll = %d, %d, want 0, 0", acks, gets)
	}
}

func TestPendingList_Empty(t *testing.T) {
	list := newPendingList()

	if _, ok := list.completeOldestAck(nil); ok {
		t.Error("completeOldestAck() = true with nothing pending")
	}
	if _, ok := list.oldestGet(); ok {
		t.Error("oldestGet() ok = true with nothing pending")
	}
}
