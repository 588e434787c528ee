package oct6100

// Handle layout: | tag (8) | unused (3) | entry open count (5) | index (16) |
const (
	HandleTagMask          uint32 = 0xFF000000
	HandleTagChannel       uint32 = 0x01000000
	HandleTagConfBridge    uint32 = 0x04000000
	HandleTagCopyEvent     uint32 = 0x0D000000
	HandleEntryOpenCntMask uint32 = 0x1F
	HandleIndexMask        uint32 = 0xFFFF
)

// HandleEntryOpenCntShift is the bit position of the entry open count
const HandleEntryOpenCntShift = 16

func makeHandle(tag uint32, openCnt uint8, index uint16) uint32 {
	return tag | (uint32(openCnt)&HandleEntryOpenCntMask)<<HandleEntryOpenCntShift | uint32(index)
}

func handleTag(h uint32) uint32 {
	return h & HandleTagMask
}

func handleIndex(h uint32) uint16 {
	return uint16(h & HandleIndexMask)
}

func handleOpenCnt(h uint32) uint8 {
	return uint8((h >> HandleEntryOpenCntShift) & HandleEntryOpenCntMask)
}

func nextOpenCnt(cnt uint8) uint8 {
	return uint8((uint32(cnt) + 1) & HandleEntryOpenCntMask)
}

// decodeHandle checks the tag and index range of h. The caller then checks
// the entry open count against the record before using it.
func decodeHandle(h uint32, tag uint32, size int, bad Status) (uint16, uint8, error) {
	if handleTag(h) != tag {
		return 0, 0, NewError(bad, "handle tag")
	}
	idx := handleIndex(h)
	if int(idx) >= size {
		return 0, 0, NewError(bad, "handle index out of range")
	}
	return idx, handleOpenCnt(h), nil
}
