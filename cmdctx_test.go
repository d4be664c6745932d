package zbc

import (
	"errors"
	"io"
	"testing"
)

// Table-driven cases covering the vecs/offset/vecoffset buffer-walking
// logic in SCSICmd.Write/Read. See DESIGN.md for the dropped
// DevReadyFunc/SingleThreadedDevReady/MultiThreadedDevReady machinery,
// which had no kernel mailbox left to poll.

func TestSCSICmdWrite(t *testing.T) {
	var tests = []struct {
		desc  string
		s     *SCSICmd
		wrote int
		err   error
	}{
		{
			desc: "out of buffer space",
			s: &SCSICmd{
				vecs:      [][]byte{{0}, {1}},
				offset:    0,
				vecoffset: 0,
			},
			wrote: 0,
			err:   errors.New("out of buffer scsi cmd buffer space"),
		},
		{
			desc: "write 3 bytes 3x1",
			s: &SCSICmd{
				vecs:      [][]byte{{0}, {1}, {2}},
				offset:    0,
				vecoffset: 0,
			},
			wrote: 3,
		},
		{
			desc: "write 3 bytes 1x3",
			s: &SCSICmd{
				vecs:      [][]byte{{0, 1, 2}},
				offset:    0,
				vecoffset: 0,
			},
			wrote: 3,
		},
	}

	for i, tt := range tests {
		b := []byte{0, 1, 2}
		wrote, err := tt.s.Write(b)
		if err != nil || tt.err != nil {
			if want, got := tt.err, err; want.Error() != got.Error() {
				t.Fatalf("[%02d] test %q, unexpected error: %v != %v",
					i, tt.desc, want, got)
			}
			continue
		}
		want, got := tt.wrote, wrote
		if want != got {
			t.Fatalf("[%02d] test %q, unexpected wrote buffer size:\n- want: %v\n-  got: %v",
				i, tt.desc, want, got)
		}
	}
}

func TestSCSICmdRead(t *testing.T) {
	var tests = []struct {
		desc string
		s    *SCSICmd
		read int
		err  error
	}{
		{
			desc: "read exceeded vecs size",
			s: &SCSICmd{
				vecs:      [][]byte{{0}, {1}},
				offset:    0,
				vecoffset: 0,
			},
			read: 0,
			err:  io.EOF,
		},
		{
			desc: "read 3 bytes 3x1",
			s: &SCSICmd{
				vecs:      [][]byte{{0}, {1}, {2}},
				offset:    0,
				vecoffset: 0,
			},
			read: 3,
		},
		{
			desc: "read 3 bytes 1x3",
			s: &SCSICmd{
				vecs:      [][]byte{{0, 1, 2}},
				offset:    0,
				vecoffset: 0,
			},
			read: 3,
		},
	}

	for i, tt := range tests {
		b := []byte{0, 1, 2}
		read, err := tt.s.Read(b)
		if err != nil || tt.err != nil {
			if want, got := tt.err, err; want != got {
				t.Fatalf("[%02d] test %q, unexpected error: %v != %v",
					i, tt.desc, want, got)
			}
			continue
		}
		want, got := tt.read, read
		if want != got {
			t.Fatalf("[%02d] test %q, unexpected read buffer size:\n- want: %v\n-  got: %v",
				i, tt.desc, want, got)
		}
	}
}

func TestActivationDisallowedSwap(t *testing.T) {
	tests := []struct {
		from, to ZoneType
		want     bool
	}{
		{ZoneTypeConventional, ZoneTypeSeqOrBeforeRequired, true},
		{ZoneTypeSeqOrBeforeRequired, ZoneTypeConventional, true},
		{ZoneTypeSeqWriteRequired, ZoneTypeSeqWritePreferred, true},
		{ZoneTypeSeqWritePreferred, ZoneTypeSeqWriteRequired, true},
		{ZoneTypeConventional, ZoneTypeSeqWriteRequired, false},
		{ZoneTypeConventional, ZoneTypeConventional, false},
	}
	for i, tt := range tests {
		if got := activationDisallowedSwap(tt.from, tt.to); got != tt.want {
			t.Fatalf("[%02d] activationDisallowedSwap(%v, %v) = %v, want %v",
				i, tt.from, tt.to, got, tt.want)
		}
	}
}
