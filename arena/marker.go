package arena

// Marker is a saved arena position: the cursor offset and the number of
// registered destructors. It is only meaningful for the arena that produced
// it, and only while no rollback has gone below it. Rolling back to a
// marker captured before an earlier rollback to an even older marker is
// detected when the saved position lies above the current one; reuse after
// the arena grew past it again is not detectable and is the caller's
// responsibility.
type Marker struct {
	arena       *Arena
	head        int
	destructors int
}

// Offset returns the saved cursor offset.
func (m Marker) Offset() int { return m.head }

// Destructors returns the saved destructor count.
func (m Marker) Destructors() int { return m.destructors }
