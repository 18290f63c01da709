package station

import "time"

type plateVote struct {
	count    int
	lastSeen time.Time
}

// plateVoteCache is the per-cycle frequency table of recognized plates. It is
// only written while the detector is waiting for stability or stabilized, and
// is cleared on every return to off-scale. All access happens under the
// station lock, so no internal synchronization is needed.
type plateVoteCache struct {
	votes map[string]*plateVote
	order []string // insertion order, for stable tie-breaking
}

func newPlateVoteCache() *plateVoteCache {
	return &plateVoteCache{votes: make(map[string]*plateVote)}
}

func (c *plateVoteCache) observe(plate string, at time.Time) {
	if plate == "" {
		return
	}
	if v, ok := c.votes[plate]; ok {
		v.count++
		v.lastSeen = at
		return
	}
	c.votes[plate] = &plateVote{count: 1, lastSeen: at}
	c.order = append(c.order, plate)
}

// bestGuess returns the plate with the highest count. Ties go to the plate
// inserted first; recency never re-orders the result. ok is false when the
// cache is empty.
func (c *plateVoteCache) bestGuess() (plate string, count int, ok bool) {
	for _, p := range c.order {
		if v := c.votes[p]; v.count > count {
			plate, count, ok = p, v.count, true
		}
	}
	return plate, count, ok
}

// seenAt returns the time of the most recent recognition of plate, zero when
// the plate was never observed in this cycle.
func (c *plateVoteCache) seenAt(plate string) time.Time {
	if v, ok := c.votes[plate]; ok {
		return v.lastSeen
	}
	return time.Time{}
}

func (c *plateVoteCache) clear() {
	c.votes = make(map[string]*plateVote)
	c.order = c.order[:0]
}
