package propval

import "time"

// Filetime is a Windows FILETIME: 100-nanosecond ticks since 1601-01-01 UTC,
// kept as the two 32-bit words that appear on the wire.
type Filetime struct {
	Low  uint32
	High uint32
}

const (
	ticksPerSecond = 10_000_000
	unixEpochTicks = 116444736000000000
)

func (ft Filetime) Ticks() uint64 {
	return uint64(ft.High)<<32 | uint64(ft.Low)
}

func (ft Filetime) IsZero() bool {
	return ft.Low == 0 && ft.High == 0
}

// Time converts to UTC. The zero Filetime maps to the zero time.Time.
func (ft Filetime) Time() time.Time {
	if ft.IsZero() {
		return time.Time{}
	}
	t := int64(ft.Ticks()) - unixEpochTicks
	return time.Unix(t/ticksPerSecond, (t%ticksPerSecond)*100).UTC()
}

func (ft Filetime) String() string {
	return ft.Time().Format(time.RFC3339Nano)
}

func FiletimeFromTicks(ticks uint64) Filetime {
	return Filetime{Low: uint32(ticks), High: uint32(ticks >> 32)}
}

func FiletimeFromTime(t time.Time) Filetime {
	if t.IsZero() {
		return Filetime{}
	}
	ticks := t.Unix()*ticksPerSecond + int64(t.Nanosecond()/100) + unixEpochTicks
	return FiletimeFromTicks(uint64(ticks))
}
