package rpz

// triggerCounts tracks how many triggers of each kind every zone holds and
// derives which zones have any, plus the qname skip-recurse mask.
type triggerCounts struct {
	counts      [MaxZones][numCounters]int
	have        [numCounters]ZoneBits
	skipRecurse ZoneBits
	waitRecurse bool
}

// adjust counts one trigger in or out. A zone's have bit changes only when
// its count moves between zero and one.
func (c *triggerCounts) adjust(id ZoneID, cnt counter, add bool) {
	n := &c.counts[id][cnt]
	if add {
		*n++
		if *n == 1 {
			c.have[cnt] |= id.Bit()
			c.fixSkipRecurse()
		}
		return
	}
	if *n == 0 {
		return
	}
	*n--
	if *n == 0 {
		c.have[cnt] &^= id.Bit()
		c.fixSkipRecurse()
	}
}

// reset forgets every trigger of one zone.
func (c *triggerCounts) reset(id ZoneID) {
	c.counts[id] = [numCounters]int{}
	c.rebuild()
}

// rebuild derives have and the skip mask from the counters.
func (c *triggerCounts) rebuild() {
	c.have = [numCounters]ZoneBits{}
	for id := range c.counts {
		for cnt, n := range c.counts[id] {
			if n > 0 {
				c.have[cnt] |= ZoneID(id).Bit()
			}
		}
	}
	c.fixSkipRecurse()
}

func (c *triggerCounts) fixSkipRecurse() {
	c.skipRecurse = skipRecurseMask(c.have, c.waitRecurse)
}

// skipRecurseMask computes the zones whose CLIENT-IP and QNAME triggers may
// be checked before recursion: every zone ahead of the first zone with a
// trigger that needs the resolved answer, plus that zone itself when it also
// has early triggers.
func skipRecurseMask(have [numCounters]ZoneBits, wait bool) ZoneBits {
	if wait {
		return 0
	}
	req := have[cntIPv4] | have[cntIPv6] | have[cntNSDName] | have[cntNSIPv4] | have[cntNSIPv6]
	if req == 0 {
		return AllZones
	}
	early := have[cntClientIPv4] | have[cntClientIPv6] | have[cntQName]
	if early&fillDown(req) == 0 {
		return 0
	}
	mask := ^(req | -req)
	mask |= lowestBit(req) & early
	return mask
}

// haveFor merges the address families of a trigger type.
func (c *triggerCounts) haveFor(t Type) ZoneBits {
	switch t {
	case TypeClientIP:
		return c.have[cntClientIPv4] | c.have[cntClientIPv6]
	case TypeIP:
		return c.have[cntIPv4] | c.have[cntIPv6]
	case TypeNSIP:
		return c.have[cntNSIPv4] | c.have[cntNSIPv6]
	case TypeQName:
		return c.have[cntQName]
	case TypeNSDName:
		return c.have[cntNSDName]
	}
	return 0
}
