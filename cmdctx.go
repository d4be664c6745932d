package zbc

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/coreos/go-zbc/scsi"
)

// tcmuSenseBufferSize is the fixed sense-buffer length the TCMU
// mailbox ABI reserves per response. This module never speaks the
// kernel UIO ring protocol directly, but keeps responses sized to fit
// it so a handler here can be wired to a real mailbox unchanged.
const tcmuSenseBufferSize = 96

// SCSICmd represents a single SCSI command dispatched to this handler.
// The buffer plumbing (vecs/offset/Read/Write) is just an
// io.Reader/io.Writer over a set of byte slices regardless of what
// command set rides on top of it; LBA/XferLen/ServiceAction are
// generalized for the Zone Domains/Zone Realms opcodes.
type SCSICmd struct {
	id        uint16
	cdb       []byte
	vecs      [][]byte
	offset    int
	vecoffset int
	device    *Device

	// Buf, if provided, may be used as a scratch buffer for copying
	// data to and from the caller.
	Buf []byte
}

// Command returns the SCSI command (opcode) byte.
func (c *SCSICmd) Command() byte { return c.cdb[0] }

// ServiceAction returns the command's service action, for the opcodes
// that carry one: the low 5 bits of byte 1 for ZBC IN/OUT (spc-4
// 4.2.5.1's "service action" convention for opcodes 0x7E/0x7F/0x80-
// 0x9F), or the 16-bit field at bytes 8:10 for the Variable Length CDB
// (opcode 0x7F) used by ZONE ACTIVATE/QUERY(32).
func (c *SCSICmd) ServiceAction() uint16 {
	if c.Command() == 0x7f {
		return binary.BigEndian.Uint16(c.cdb[8:10])
	}
	return uint16(c.cdb[1] & 0x1f)
}

// CdbLen returns the length of the command, in bytes, per spc-4
// 4.2.5.1's operation-code-to-CDB-length convention.
func (c *SCSICmd) CdbLen() int {
	opcode := c.cdb[0]
	switch {
	case opcode <= 0x1f:
		return 6
	case opcode <= 0x5f:
		return 10
	case opcode == 0x7f:
		return int(c.cdb[7]) + 8
	case opcode >= 0x80 && opcode <= 0x9f:
		return 16
	case opcode >= 0xa0 && opcode <= 0xbf:
		return 12
	}
	return len(c.cdb)
}

// LBA returns the block address this command wishes to access. The
// ZBC IN/OUT 16-byte CDBs always carry an 8-byte start LBA at bytes
// 2:10; the Variable Length CDB used for the 32-bit ZONE ACTIVATE/
// QUERY carries it at bytes 12:20. Decoded tolerant of any width up to
// 64 bits rather than a hard-coded 48-bit mask, so a future widening
// of the field needs no call-site changes; any set bit above the
// nominal 48 is preserved rather than silently dropped.
func (c *SCSICmd) LBA() uint64 {
	order := binary.BigEndian
	switch c.CdbLen() {
	case 6:
		return uint64(c.cdb[1]&0x1f)<<16 | uint64(c.cdb[2])<<8 | uint64(c.cdb[3])
	case 10:
		return uint64(order.Uint32(c.cdb[2:6]))
	case 12:
		return uint64(order.Uint32(c.cdb[2:6]))
	case 16:
		return order.Uint64(c.cdb[2:10])
	case 32:
		return order.Uint64(c.cdb[12:20])
	default:
		return order.Uint64(c.cdb[2:10])
	}
}

// AllBit reports the ALL bit (byte 14, bit 0) carried by the ZBC OUT
// range operations (CLOSE/FINISH/OPEN/RESET WRITE POINTER ZONE).
func (c *SCSICmd) AllBit() bool {
	if len(c.cdb) < 15 {
		return false
	}
	return c.cdb[14]&0x01 != 0
}

// ReportingOptions returns the low 6 bits of the REPORT ZONES/REALMS/
// DOMAINS reporting-options byte (byte 14) and whether the PARTIAL bit
// (byte 14, bit 7) is set.
func (c *SCSICmd) ReportingOptions() (opts byte, partial bool) {
	b := c.cdb[14]
	return b & 0x3f, b&0x80 != 0
}

// XferLen returns the length of the data buffer this command provides
// for transferring data to/from the caller (for ZBC IN commands, this
// doubles as the allocation length at bytes 10:14).
func (c *SCSICmd) XferLen() uint32 {
	order := binary.BigEndian
	switch c.CdbLen() {
	case 6:
		return uint32(c.cdb[4])
	case 10:
		return uint32(order.Uint16(c.cdb[7:9]))
	case 12:
		return order.Uint32(c.cdb[6:10])
	case 16:
		return order.Uint32(c.cdb[10:14])
	case 32:
		return order.Uint32(c.cdb[28:32])
	default:
		return order.Uint32(c.cdb[10:14])
	}
}

// Write is an io.Writer into the data buffer attached to this command;
// used to hand data back to the caller (READ, REPORT ZONES, ...).
func (c *SCSICmd) Write(b []byte) (n int, err error) {
	toWrite := len(b)
	boff := 0
	for toWrite != 0 {
		if c.vecoffset == len(c.vecs) {
			return boff, errors.New("out of buffer scsi cmd buffer space")
		}
		wrote := copy(c.vecs[c.vecoffset][c.offset:], b[boff:])
		boff += wrote
		toWrite -= wrote
		c.offset += wrote
		if c.offset == len(c.vecs[c.vecoffset]) {
			c.vecoffset++
			c.offset = 0
		}
	}
	return boff, nil
}

// Read is an io.Reader from the data buffer attached to this command;
// used to pull data the caller wants written (WRITE, MODE SELECT, ...).
func (c *SCSICmd) Read(b []byte) (n int, err error) {
	toRead := len(b)
	boff := 0
	for toRead != 0 {
		if c.vecoffset == len(c.vecs) {
			return boff, io.EOF
		}
		read := copy(b[boff:], c.vecs[c.vecoffset][c.offset:])
		boff += read
		toRead -= read
		c.offset += read
		if c.offset == len(c.vecs[c.vecoffset]) {
			c.vecoffset++
			c.offset = 0
		}
	}
	return boff, nil
}

// Device accesses the zone-domains device this command targets.
func (c *SCSICmd) Device() *Device { return c.device }

// GetCDB returns the byte at index inside the command.
func (c *SCSICmd) GetCDB(index int) byte { return c.cdb[index] }

// Ok returns a SCSIResponse with SAM_STAT_GOOD, the common success case.
func (c *SCSICmd) Ok() SCSIResponse {
	return SCSIResponse{id: c.id, status: scsi.SamStatGood}
}

// RespondStatus returns a SCSIResponse with the given status byte set.
func (c *SCSICmd) RespondStatus(status byte) SCSIResponse {
	return SCSIResponse{id: c.id, status: status}
}

// RespondSenseData returns a check-condition response carrying a raw
// sense buffer, for callers that build one directly.
func (c *SCSICmd) RespondSenseData(status byte, sense []byte) SCSIResponse {
	return SCSIResponse{id: c.id, status: status, senseBuffer: sense}
}

// NotHandled tells the caller this device does not emulate this command.
func (c *SCSICmd) NotHandled() SCSIResponse {
	return c.CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
}

// CheckCondition returns a response carrying a fixed-format sense
// buffer built from a sense key and ASC/ASCQ pair.
func (c *SCSICmd) CheckCondition(key byte, asc uint16) SCSIResponse {
	buf := make([]byte, tcmuSenseBufferSize)
	buf[0] = 0x70 /* fixed, current */
	buf[2] = key
	buf[7] = 0xa
	buf[12] = byte(asc >> 8)
	buf[13] = byte(asc)
	return SCSIResponse{id: c.id, status: scsi.SamStatCheckCondition, senseBuffer: buf}
}

// RespondError turns any *SenseError (from senseerr.go, or from the
// zbc/format/validate/statemachine/activation/iopath layers below the
// handler) into a check-condition response, pushing it onto the
// device's deferred sense FIFO too so a following REQUEST SENSE sees
// it if the initiator asks again.
func (c *SCSICmd) RespondError(e *SenseError) SCSIResponse {
	c.device.sense.push(e)
	return c.CheckCondition(e.Key, e.ASC)
}

// MediumError, IllegalRequest and TargetFailure are preset check
// conditions for the generic SPC-layer command emulation (INQUIRY,
// MODE SENSE, ...) that doesn't go through a *SenseError.
func (c *SCSICmd) MediumError() SCSIResponse {
	return c.CheckCondition(scsi.SenseMediumError, scsi.AscReadError)
}

func (c *SCSICmd) IllegalRequest() SCSIResponse {
	return c.CheckCondition(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
}

func (c *SCSICmd) TargetFailure() SCSIResponse {
	return c.CheckCondition(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
}

// SCSIResponse is generated from methods on SCSICmd and returned by a
// SCSICmdHandler.
type SCSIResponse struct {
	id          uint16
	status      byte
	senseBuffer []byte
}
