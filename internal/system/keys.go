package system

import "encoding/binary"

// Key is a control key of the on-device preview.
type Key int

const (
	KeyUp Key = iota + 1
	KeyDown
	KeyReset
	KeyExit
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyReset:
		return "reset"
	case KeyExit:
		return "exit"
	}
	return "unknown"
}

// Linux input-event-codes.h
const (
	evKey      = 0x01
	keyCodeR   = 19
	keyCodeF4  = 62
	keyCodeUp  = 103
	keyCodeDwn = 108
)

var keyCodes = map[uint16]Key{
	keyCodeUp:  KeyUp,
	keyCodeDwn: KeyDown,
	keyCodeR:   KeyReset,
	keyCodeF4:  KeyExit,
}

// parseKeyPresses decodes a buffer of input_event records (timeval, u16
// type, u16 code, s32 value) and returns the known keys pressed down.
// Releases and auto-repeats are skipped.
func parseKeyPresses(buf []byte, tvSize int) []Key {
	eventSize := tvSize + 2 + 2 + 4
	var keys []Key
	for off := 0; off+eventSize <= len(buf); off += eventSize {
		rec := buf[off : off+eventSize]
		typ := binary.LittleEndian.Uint16(rec[tvSize : tvSize+2])
		code := binary.LittleEndian.Uint16(rec[tvSize+2 : tvSize+4])
		value := int32(binary.LittleEndian.Uint32(rec[tvSize+4 : tvSize+8]))
		if typ != evKey || value != 1 {
			continue
		}
		if k, ok := keyCodes[code]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}
