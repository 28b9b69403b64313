package ntlm

// targetInfoEncoder re-encodes the server's AV pairs for the client
// challenge, adding the MsvAvFlags and target name pairs.
type targetInfoEncoder struct {
	InfoMap map[uint16][]byte
	List    []uint16
	spn     []byte
}

func newTargetInfoEncoder(info, spn []byte) *targetInfoEncoder {
	e := &targetInfoEncoder{
		InfoMap: make(map[uint16][]byte),
		spn:     spn,
	}
	for {
		if len(info) < 4 {
			return nil
		}
		id := le.Uint16(info[:2])
		n := int(le.Uint16(info[2:4]))
		if len(info) < 4+n {
			return nil
		}
		if id == MsvAvEOL {
			return e
		}
		if _, dup := e.InfoMap[id]; !dup {
			e.List = append(e.List, id)
		}
		e.InfoMap[id] = info[4 : 4+n]
		info = info[4+n:]
	}
}

func (e *targetInfoEncoder) flags() uint32 {
	var f uint32
	if bs, ok := e.InfoMap[MsvAvFlags]; ok && len(bs) >= 4 {
		f = le.Uint32(bs)
	}
	if _, ok := e.InfoMap[MsvAvTimestamp]; ok {
		f |= msvAvFlagMICProvided
	}
	return f
}

func (e *targetInfoEncoder) skip(id uint16) bool {
	return id == MsvAvFlags || id == MsvAvTargetName || id == MsvAvChannelBindings
}

func (e *targetInfoEncoder) size() int {
	size := 0
	for _, id := range e.List {
		if !e.skip(id) {
			size += 4 + len(e.InfoMap[id])
		}
	}
	size += 4 + 4 // MsvAvFlags
	if len(e.spn) > 0 {
		size += 4 + len(e.spn)
	}
	return size + 4 // MsvAvEOL
}

func (e *targetInfoEncoder) encode(dst []byte) {
	off := 0
	put := func(id uint16, bs []byte) {
		le.PutUint16(dst[off:off+2], id)
		le.PutUint16(dst[off+2:off+4], uint16(len(bs)))
		copy(dst[off+4:], bs)
		off += 4 + len(bs)
	}
	for _, id := range e.List {
		if !e.skip(id) {
			put(id, e.InfoMap[id])
		}
	}
	flags := make([]byte, 4)
	le.PutUint32(flags, e.flags())
	put(MsvAvFlags, flags)
	if len(e.spn) > 0 {
		put(MsvAvTargetName, e.spn)
	}
	put(MsvAvEOL, nil)
}
