// Package vm implements demand-paged virtual memory: per-process address
// spaces backed by a software TLB, a global clock-algorithm core map, and
// per-process swap files (spec.md §4.8).
package vm

import "github.com/Gastonm123/nachos-go/machine"

// PageSize is the unit of virtual memory this package manages, the same
// size as a disk sector (spec.md's FileHeader/CoreMap/Swap share the
// geometry).
const PageSize = machine.PageSize

// PageTableEntry mirrors one machine.TLBEntry, plus the swap-residency bit
// a TLB entry has no room for.
type PageTableEntry struct {
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
	Use          bool
	Dirty        bool
	InSwap       bool
}
