package fatx

import (
	"fmt"
	"time"
)

const (
	// Original Xbox timestamps store years offset from 2000; Xbox 360
	// timestamps store years offset from 1980.
	xTimestampEpoch    = 2000
	x360TimestampEpoch = 1980
)

// FatXTimestamp is a packed calendar timestamp as stored in a dirent. The
// bitfield layout is identical across console generations; only the year
// epoch differs.
type FatXTimestamp struct {
	raw   uint32
	epoch int
}

// NewXTimestamp returns a timestamp decoded with the Original Xbox epoch.
func NewXTimestamp(raw uint32) FatXTimestamp {
	return FatXTimestamp{raw: raw, epoch: xTimestampEpoch}
}

// NewX360Timestamp returns a timestamp decoded with the Xbox 360 epoch.
func NewX360Timestamp(raw uint32) FatXTimestamp {
	return FatXTimestamp{raw: raw, epoch: x360TimestampEpoch}
}

// Raw returns the packed on-disk value.
func (ts FatXTimestamp) Raw() uint32 {
	return ts.raw
}

func (ts FatXTimestamp) Year() int {
	return ts.epoch + int((ts.raw&0xfe000000)>>25)
}

func (ts FatXTimestamp) Month() int {
	return int((ts.raw & 0x1e00000) >> 21)
}

func (ts FatXTimestamp) Day() int {
	return int((ts.raw & 0x1f0000) >> 16)
}

func (ts FatXTimestamp) Hour() int {
	return int((ts.raw & 0xf800) >> 11)
}

func (ts FatXTimestamp) Minute() int {
	return int((ts.raw & 0x7e0) >> 5)
}

// Second returns the seconds field. Seconds are stored with two-second
// granularity.
func (ts FatXTimestamp) Second() int {
	return int(ts.raw&0x1f) * 2
}

// Timestamp converts to a time.Time. The result is only meaningful for
// values that pass IsConstructible.
func (ts FatXTimestamp) Timestamp() time.Time {
	return time.Date(ts.Year(), time.Month(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.Local)
}

// IsConstructible returns whether the packed fields describe a real calendar
// date and time. time.Date normalizes out-of-range components instead of
// failing, so we compare the constructed value back against the fields.
func (ts FatXTimestamp) IsConstructible() bool {
	t := ts.Timestamp()

	return t.Year() == ts.Year() &&
		t.Month() == time.Month(ts.Month()) &&
		t.Day() == ts.Day() &&
		t.Hour() == ts.Hour() &&
		t.Minute() == ts.Minute() &&
		t.Second() == ts.Second()
}

func (ts FatXTimestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
}
