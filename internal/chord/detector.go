package chord

// MinNotes is the smallest cluster treated as a chord.
const MinNotes = 2

// Outcome tells what Offer did with a chord.
type Outcome int

const (
	// Ignored: fewer than MinNotes distinct pitches.
	Ignored Outcome = iota
	// BecameCurrent: there was no current chord.
	BecameCurrent
	// BecamePending: queued behind the current chord.
	BecamePending
	// ReplacedPending: overwrote a pending chord that never sounded.
	ReplacedPending
)

func (o Outcome) String() string {
	switch o {
	case BecameCurrent:
		return "current"
	case BecamePending:
		return "pending"
	case ReplacedPending:
		return "replaced-pending"
	default:
		return "ignored"
	}
}

// Detector owns the current and pending chord slots. A pending chord only
// exists while a current chord does.
type Detector struct {
	current Option[Chord]
	pending Option[Chord]
}

// Offer presents a cluster of simultaneous notes. The pending chord's time is
// the deadline by which its transition must complete.
func (d *Detector) Offer(c Chord) Outcome {
	if c.Len() < MinNotes {
		return Ignored
	}
	if !d.current.IsSome() {
		d.current = Some(c)
		return BecameCurrent
	}
	if d.pending.IsSome() {
		d.pending = Some(c)
		return ReplacedPending
	}
	d.pending = Some(c)
	return BecamePending
}

// Current returns the current chord.
func (d *Detector) Current() (Chord, bool) { return d.current.Get() }

// Pending returns the pending chord.
func (d *Detector) Pending() (Chord, bool) { return d.pending.Get() }

// Promote makes the pending chord current. It is a no-op without a pending
// chord.
func (d *Detector) Promote() {
	if p, ok := d.pending.Get(); ok {
		d.current = Some(p)
		d.pending = None[Chord]()
	}
}

// Release removes pitch from the current chord if it was struck before t.
// emptied is true when that removal left the current chord without notes. The
// slots are then cleared, except that a pending chord struck at or after t
// becomes the new current chord.
func (d *Detector) Release(pitch uint8, t int64) (removed, emptied bool) {
	cur, ok := d.current.Get()
	if !ok {
		return false, false
	}
	n, ok := cur.Find(pitch)
	if !ok || n.Time >= t {
		return false, false
	}
	cur = cur.Without(pitch)
	if cur.Empty() {
		next, ok := d.pending.Get()
		d.Clear()
		if ok && next.Time() >= t {
			d.current = Some(next)
		}
		return true, true
	}
	d.current = Some(cur)
	return true, false
}

// Clear empties both slots.
func (d *Detector) Clear() {
	d.current = None[Chord]()
	d.pending = None[Chord]()
}
