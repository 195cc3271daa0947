// Package mpe holds the MIDI Polyphonic Expression plumbing shared by the
// engine: the member-channel pool, pitch-bend encoding and the configuration
// messages a receiving synthesizer needs.
package mpe

import (
	"errors"
	"math/bits"
)

// Channels are zero-based wire channels as used by gomidi. The lower zone
// uses MIDI channel 1 as master and channels 2-16 as members.
const (
	MasterChannel uint8 = 0
	FirstMember   uint8 = 1
	NumMembers          = 15

	memberMask uint16 = 1<<NumMembers - 1
)

// ErrNoChannel is returned by Allocate when every member channel is held.
var ErrNoChannel = errors.New("mpe: no channel available")

// Allocator hands out member channels. The zero value is an empty pool.
type Allocator struct {
	used uint16 // bit i set: FirstMember+i is held
}

// Allocate returns the lowest-numbered free member channel.
func (a *Allocator) Allocate() (uint8, error) {
	free := ^a.used & memberMask
	if free == 0 {
		return 0, ErrNoChannel
	}
	i := bits.TrailingZeros16(free)
	a.used |= 1 << i
	return FirstMember + uint8(i), nil //nolint:gosec // i < NumMembers
}

// Release frees ch. Releasing a channel that is not held is a no-op.
func (a *Allocator) Release(ch uint8) {
	if !IsMember(ch) {
		return
	}
	a.used &^= 1 << (ch - FirstMember)
}

// Reset frees the whole pool.
func (a *Allocator) Reset() {
	a.used = 0
}

// InUse reports whether ch is currently held.
func (a *Allocator) InUse(ch uint8) bool {
	return IsMember(ch) && a.used&(1<<(ch-FirstMember)) != 0
}

// Available returns the number of free member channels.
func (a *Allocator) Available() int {
	return NumMembers - bits.OnesCount16(a.used)
}

// IsMember reports whether ch lies in the member range.
func IsMember(ch uint8) bool {
	return ch >= FirstMember && ch < FirstMember+NumMembers
}
