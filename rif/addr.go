package rif

// The allocator assigns byte addresses to the instances of one page in list
// order. Auto instances follow the previous instance's footprint; the very
// first one starts at the page base. Relative forms add their offset (never
// less than one footprint) to the running base, which only absolute, auto and
// @+= placements move.

type addrCursor struct {
	prev     uint64 // running base: last absolute, auto or @+= address
	prevSize uint64 // footprint of the previous instance in bytes
	started  bool
}

func (cursor *addrCursor) place(inst *Instance, base uint64, byteSize uint64) uint64 {
	size := byteSize * uint64(inst.ArraySize)
	var addr uint64
	switch inst.AddrKind {
	case AddrAbsolute:
		addr = inst.Addr
	case AddrRelative, AddrRelativeSet:
		offset := inst.Addr
		if offset < cursor.prevSize {
			offset = cursor.prevSize
		}
		addr = cursor.prev + offset
	default:
		if !cursor.started {
			addr = base
		} else {
			addr = cursor.prev + cursor.prevSize
		}
	}
	if inst.AddrKind != AddrRelative {
		cursor.prev = addr
	}
	cursor.prevSize, cursor.started = size, true
	return addr
}

// allocateAddrs resolves every instance address of a page and validates the
// page bounds and group array-size consistency.
func allocateAddrs(page *Page, dataWidth int) error {
	byteSize := uint64((dataWidth + 7) / 8)
	limit := page.BaseAddr + uint64(1)<<uint(page.AddrWidth)
	cursor := &addrCursor{}
	groupSizes := map[string]int{}
	for _, inst := range page.Instances {
		addr := cursor.place(inst, page.BaseAddr, byteSize)
		size := byteSize * uint64(inst.ArraySize)
		if addr < page.BaseAddr || addr+size > limit {
			return makeRangeError(0,
				"instance %s at 0x%x..0x%x is outside page %s [0x%x, 0x%x)",
				inst.Name, addr, addr+size-1, page.Name, page.BaseAddr, limit)
		}
		inst.Addr = addr
		inst.AddrKind = AddrAbsolute
		if regStruct := findStruct(page, inst.Type); regStruct != nil && regStruct.Group != "" {
			if prevSize, seen := groupSizes[regStruct.Group]; seen && prevSize != inst.ArraySize {
				return makeConflictError(0,
					"group %s is instantiated with array sizes %d and %d",
					regStruct.Group, prevSize, inst.ArraySize)
			}
			groupSizes[regStruct.Group] = inst.ArraySize
		}
	}
	return nil
}
