package vm

import (
	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/synch"
)

// NumFrames is the number of physical page frames CoreMap manages. Kept
// small, like disk.CacheSize, so the package's own tests can force
// eviction without a large backing array.
const NumFrames = 32

type frame struct {
	valid bool
	owner *AddressSpace
	vpn   int
	bytes [PageSize]byte
}

// CoreMap is the single, global physical-frame allocator shared by every
// AddressSpace (spec.md §4.8). FindPhysPage hands out a free frame or, if
// none remain, evicts one via a clock-like sweep over Use/Dirty bits.
type CoreMap struct {
	lock   *synch.Lock
	frames [NumFrames]frame
	hand   int
}

// NewCoreMap constructs an all-free CoreMap.
func NewCoreMap(in *synch.Interrupts, sched synch.SchedulerHooks) *CoreMap {
	return &CoreMap{lock: synch.NewLock("coremap", in, sched, false)}
}

// Frame returns the raw bytes backing ppn, for callers that need to copy
// into or out of physical memory (page-in from an executable, or a swap
// write/pull).
func (cm *CoreMap) Frame(ppn int) *[PageSize]byte {
	return &cm.frames[ppn].bytes
}

// FindPhysPage returns a frame free to hold owner's vpn, evicting a victim
// via evictLocked if every frame is in use.
func (cm *CoreMap) FindPhysPage(owner *AddressSpace, vpn int) int {
	cm.lock.Acquire()
	defer cm.lock.Release()

	for i := range cm.frames {
		if !cm.frames[i].valid {
			cm.frames[i] = frame{valid: true, owner: owner, vpn: vpn}
			return i
		}
	}
	return cm.evictLocked(owner, vpn)
}

// evictLocked runs a clock-like sweep preferring, in order, a frame that
// is neither referenced nor dirty, then one merely unreferenced, then one
// merely clean, then whatever the hand currently points at — clearing Use
// as it passes each entry (spec.md §4.8). The victim's owner is informed
// via its evict method before the frame is reassigned.
func (cm *CoreMap) evictLocked(newOwner *AddressSpace, newVPN int) int {
	n := len(cm.frames)
	var victim = -1
	for pass := 0; pass < 3 && victim == -1; pass++ {
		for k := 0; k < n; k++ {
			i := (cm.hand + k) % n
			f := &cm.frames[i]
			e := f.owner.entry(f.vpn)
			switch pass {
			case 0:
				if !e.Use && !e.Dirty {
					victim = i
				}
			case 1:
				if !e.Use {
					victim = i
				}
			case 2:
				if !e.Dirty {
					victim = i
				}
			}
			if victim != -1 {
				cm.hand = (i + 1) % n
				break
			}
			if pass == 0 {
				e.Use = false
			}
		}
	}
	if victim == -1 {
		victim = cm.hand
		cm.hand = (cm.hand + 1) % n
	}

	f := &cm.frames[victim]
	f.owner.evict(f.vpn, &f.bytes)
	log.WithFields(log.Fields{"frame": victim, "asid": f.owner.ID, "vpn": f.vpn}).Debug("vm: evicted")

	cm.frames[victim] = frame{valid: true, owner: newOwner, vpn: newVPN}
	return victim
}
