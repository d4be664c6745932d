package zbc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coreos/go-zbc/scsi"
	"github.com/prometheus/common/log"
)

// This file implements the SCSICmdHandler dispatch-switch for the
// zone-domains command set: the SPC-layer emulation (INQUIRY, MODE
// SENSE/SELECT, generic READ/WRITE plumbing) handles the commands a
// flat block device would, and the ZBC IN/OUT/Variable Length CDB
// opcodes dispatch into the format/validate/statemachine/activation/
// iopath layers instead.

// SCSICmdHandler is a request/response handler for SCSI commands. A
// SCSI error is reported as a SCSIResponse with the check-condition
// bit set; a returned Go error is reserved for flagrant, process-
// ending failures.
type SCSICmdHandler interface {
	HandleCommand(cmd *SCSICmd) (SCSIResponse, error)
}

// InquiryInfo holds vendor identification for the emulated device.
type InquiryInfo struct {
	VendorID   string
	ProductID  string
	ProductRev string
}

var defaultInquiry = InquiryInfo{
	VendorID:   "go-zbc",
	ProductID:  "ZoneDomains Dev",
	ProductRev: "0001",
}

// ZoneDomainsHandler dispatches SCSI commands against a single zbc
// Device.
type ZoneDomainsHandler struct {
	Dev *Device
	Inq *InquiryInfo
}

func (h *ZoneDomainsHandler) inq() *InquiryInfo {
	if h.Inq == nil {
		return &defaultInquiry
	}
	return h.Inq
}

func (h *ZoneDomainsHandler) HandleCommand(cmd *SCSICmd) (SCSIResponse, error) {
	cmd.device = h.Dev
	switch cmd.Command() {
	case scsi.Inquiry:
		return EmulateInquiry(cmd, h.inq())
	case scsi.TestUnitReady:
		return cmd.Ok(), nil
	case scsi.RequestSense:
		return EmulateRequestSense(cmd)
	case scsi.ServiceActionIn16:
		return EmulateServiceActionIn(cmd)
	case scsi.ModeSense, scsi.ModeSense10:
		return EmulateModeSense(cmd)
	case scsi.ModeSelect, scsi.ModeSelect10:
		return EmulateModeSelect(cmd)
	case scsi.Read6, scsi.Read10, scsi.Read12, scsi.Read16:
		return EmulateZonedRead(cmd)
	case scsi.Write6, scsi.Write10, scsi.Write12, scsi.Write16:
		return EmulateZonedWrite(cmd)
	case scsi.ZbcIn:
		return h.handleZbcIn(cmd)
	case scsi.ZbcOut:
		return h.handleZbcOut(cmd)
	case scsi.FormatUnit:
		return EmulateFormatUnit(cmd)
	case scsi.SynchronizeCache, scsi.SynchronizeCache16:
		return EmulateSynchronizeCache(cmd)
	case scsi.Sanitize:
		return EmulateSanitize(cmd)
	case scsi.ReceiveDiagnostic:
		return EmulateReceiveDiagnostic(cmd)
	case 0x7f:
		return h.handleVariableLength(cmd)
	default:
		log.Debugf("zbc: ignoring unhandled SCSI command 0x%x", cmd.Command())
	}
	return cmd.NotHandled(), nil
}

func (h *ZoneDomainsHandler) handleZbcIn(cmd *SCSICmd) (SCSIResponse, error) {
	switch cmd.ServiceAction() {
	case scsi.ZiSaReportZones:
		return EmulateReportZones(cmd)
	case scsi.ZiSaReportRealms:
		return EmulateReportRealms(cmd)
	case scsi.ZiSaReportZoneDomains:
		return EmulateReportZoneDomains(cmd)
	case scsi.ZiSaZoneActivate16:
		return EmulateZoneActivate(cmd, false, 16)
	case scsi.ZiSaZoneQuery16:
		return EmulateZoneActivate(cmd, true, 16)
	case scsi.ZiSaReportMutations:
		return EmulateReportMutations(cmd)
	default:
		return cmd.NotHandled(), nil
	}
}

func (h *ZoneDomainsHandler) handleZbcOut(cmd *SCSICmd) (SCSIResponse, error) {
	switch cmd.ServiceAction() {
	case scsi.ZoSaCloseZone:
		return EmulateZoneRangeOp(cmd, cmd.device.CloseZone)
	case scsi.ZoSaFinishZone:
		return EmulateZoneRangeOp(cmd, cmd.device.FinishZone)
	case scsi.ZoSaOpenZone:
		return EmulateZoneRangeOp(cmd, cmd.device.OpenZone)
	case scsi.ZoSaResetWp:
		return EmulateZoneRangeOp(cmd, cmd.device.ResetWP)
	case scsi.ZoSaSequentialize:
		return EmulateZoneRangeOp(cmd, cmd.device.SequentializeZone)
	case scsi.ZoSaMutate:
		return EmulateMutate(cmd)
	default:
		return cmd.NotHandled(), nil
	}
}

func (h *ZoneDomainsHandler) handleVariableLength(cmd *SCSICmd) (SCSIResponse, error) {
	switch cmd.ServiceAction() {
	case scsi.ZbcSaZoneActivate32:
		return EmulateZoneActivate(cmd, false, 32)
	case scsi.ZbcSaZoneQuery32:
		return EmulateZoneActivate(cmd, true, 32)
	default:
		return cmd.NotHandled(), nil
	}
}

// EmulateRequestSense drains the device's deferred sense FIFO of
// 3-byte sense triplets, oldest first, as REQUEST SENSE requires.
func EmulateRequestSense(cmd *SCSICmd) (SCSIResponse, error) {
	e := cmd.device.sense.pop()
	if e == nil {
		buf := make([]byte, tcmuSenseBufferSize)
		buf[0] = 0x70
		buf[2] = scsi.SenseNoSense
		cmd.Write(buf)
		return cmd.Ok(), nil
	}
	return cmd.CheckCondition(e.Key, e.ASC), nil
}

func FixedString(s string, length int) []byte {
	p := []byte(s)
	l := len(p)
	if l >= length {
		return p[:length]
	}
	return append(p, bytes.Repeat([]byte{' '}, length-l)...)
}

func EmulateInquiry(cmd *SCSICmd, inq *InquiryInfo) (SCSIResponse, error) {
	if (cmd.GetCDB(1) & 0x01) == 0 {
		if cmd.GetCDB(2) == 0x00 {
			return EmulateStdInquiry(cmd, inq)
		}
		return cmd.IllegalRequest(), nil
	}
	return EmulateEvpdInquiry(cmd, inq)
}

func EmulateStdInquiry(cmd *SCSICmd, inq *InquiryInfo) (SCSIResponse, error) {
	buf := make([]byte, 36)
	buf[2] = 0x05 // SPC-3
	buf[3] = 0x02
	buf[7] = 0x02
	copy(buf[8:16], FixedString(inq.VendorID, 8))
	copy(buf[16:32], FixedString(inq.ProductID, 16))
	copy(buf[32:36], FixedString(inq.ProductRev, 4))
	buf[4] = 31
	cmd.Write(buf)
	return cmd.Ok(), nil
}

func EmulateEvpdInquiry(cmd *SCSICmd, inq *InquiryInfo) (SCSIResponse, error) {
	vpdType := cmd.GetCDB(2)
	switch vpdType {
	case 0x00:
		data := make([]byte, 7)
		data[3] = 3
		data[4] = 0x00
		data[5] = 0xb1
		data[6] = 0xb6
		cmd.Write(data)
		return cmd.Ok(), nil
	case 0xb1:
		// Block Device Characteristics: report the device type from
		// the header, so a host can distinguish host-managed/host-
		// aware/zone-domains personalities without a ZBC IN round trip.
		data := make([]byte, 64)
		data[1] = 0xb1
		binary.BigEndian.PutUint16(data[2:4], 60)
		data[8] = 0x00
		data[7] = byte(cmd.device.Meta.DeviceType) << 4
		data[9] = scsi.MutateOptionListOnly // MUTATE supported
		cmd.Write(data)
		return cmd.Ok(), nil
	case 0xb6:
		// Zoned Block Device Characteristics VPD page.
		data := make([]byte, 64)
		data[1] = 0xb6
		binary.BigEndian.PutUint16(data[2:4], 60)
		data[4] = byte(cmd.device.Meta.DeviceType)
		if cmd.device.Meta.URSWRZ {
			data[4] |= 0x01
		}
		binary.BigEndian.PutUint32(data[8:12], cmd.device.Meta.OptOpenZones)
		binary.BigEndian.PutUint32(data[12:16], cmd.device.Meta.MaxOpenZones)
		cmd.Write(data)
		return cmd.Ok(), nil
	default:
		return cmd.IllegalRequest(), nil
	}
}

// SmokeTestInquiry issues a standard INQUIRY through h and confirms it
// comes back SAM_STAT_GOOD, the same "can this handler answer a basic
// command" check cmd/zbcfile runs once at startup before handing the
// device over to a caller.
func SmokeTestInquiry(h SCSICmdHandler) error {
	buf := make([]byte, 96)
	cmd := &SCSICmd{
		cdb:  []byte{scsi.Inquiry, 0, 0, 0, 96, 0},
		vecs: [][]byte{buf},
	}
	resp, err := h.HandleCommand(cmd)
	if err != nil {
		return err
	}
	if resp.status != scsi.SamStatGood {
		return fmt.Errorf("zbc: inquiry self-check returned status 0x%x", resp.status)
	}
	return nil
}

func EmulateServiceActionIn(cmd *SCSICmd) (SCSIResponse, error) {
	if cmd.GetCDB(1) == scsi.ReadCapacity16 {
		return EmulateReadCapacity16(cmd)
	}
	return cmd.NotHandled(), nil
}

func EmulateReadCapacity16(cmd *SCSICmd) (SCSIResponse, error) {
	buf := make([]byte, 32)
	order := binary.BigEndian
	order.PutUint64(buf[0:8], cmd.device.LogicalCapacity())
	order.PutUint32(buf[8:12], cmd.device.LBASize())
	if cmd.device.Meta.DeviceType != DeviceType(DevTypeNonZoned) {
		buf[12] = 1 << 4 // ZONED field in the LOGICAL BLOCK PROVISIONING byte
	}
	cmd.Write(buf)
	return cmd.Ok(), nil
}

func cachingModePage(w io.Writer) {
	buf := make([]byte, 20)
	buf[0] = 0x08
	buf[1] = 0x12
	w.Write(buf)
}

// zdControlModePage emits the Zoned Block Device Control mode page
// (0x00/0x0e per T10 ZBC-2 §6.4.5), the vehicle for the
// URSWRZ/FSNOZ/max-activation control fields MUTATE and MODE SELECT
// are defined against.
func zdControlModePage(w io.Writer, d *Device) {
	buf := make([]byte, 16)
	buf[0] = 0x0e // page code, no subpage
	buf[1] = 0x0e // page length
	if d.Meta.URSWRZ {
		buf[4] = 0x01
	}
	binary.BigEndian.PutUint32(buf[8:12], d.Meta.MaxActivation)
	w.Write(buf)
}

func EmulateModeSense(cmd *SCSICmd) (SCSIResponse, error) {
	pgs := &bytes.Buffer{}
	outlen := int(cmd.XferLen())
	page := cmd.GetCDB(2) & 0x3f
	switch page {
	case 0x3f, 0x08:
		cachingModePage(pgs)
	case 0x0e:
		zdControlModePage(pgs, cmd.device)
	}
	dsp := byte(0x10)
	pgdata := pgs.Bytes()
	var hdr []byte
	if cmd.Command() == scsi.ModeSense {
		hdr = make([]byte, 4)
		hdr[0] = byte(len(pgdata) + 3)
		hdr[2] = dsp
	} else {
		hdr = make([]byte, 8)
		binary.BigEndian.PutUint16(hdr, uint16(len(pgdata)+6))
		hdr[3] = dsp
	}
	data := append(hdr, pgdata...)
	if outlen < len(data) {
		data = data[:outlen]
	}
	cmd.Write(data)
	return cmd.Ok(), nil
}

// EmulateModeSelect applies a mode parameter list against the Zoned
// Block Device Control page (0x0e), the only settable page this
// target exposes: it walks the mode parameter header, skips over the
// block descriptor it declares, and if the following page is 0x0e,
// applies its URSWRZ bit (byte 4, bit 0) to the device. Any other page
// code in the list, or a zero-length list, is accepted as a no-op; a
// list too short to hold its mode parameter header is rejected.
func EmulateModeSelect(cmd *SCSICmd) (SCSIResponse, error) {
	allocLen := cmd.XferLen()
	if allocLen == 0 {
		return cmd.Ok(), nil
	}
	inBuf := make([]byte, 512)
	n, err := cmd.Read(inBuf)
	if err != nil && err != io.EOF {
		return SCSIResponse{}, err
	}
	if n >= len(inBuf) {
		return cmd.CheckCondition(scsi.SenseIllegalRequest, scsi.AscParameterListLengthError), nil
	}
	data := inBuf[:n]

	var hdrLen, bdLen int
	if cmd.Command() == scsi.ModeSelect {
		hdrLen = 4
		if hdrLen > len(data) {
			return cmd.IllegalRequest(), nil
		}
		bdLen = int(data[3])
	} else {
		hdrLen = 8
		if hdrLen > len(data) {
			return cmd.IllegalRequest(), nil
		}
		bdLen = int(binary.BigEndian.Uint16(data[6:8]))
	}
	off := hdrLen + bdLen
	if off+2 > len(data) || data[off]&0x3f != 0x0e {
		return cmd.Ok(), nil
	}
	// Only the ZD control page's URSWRZ bit is settable, and only when
	// the resolved profile allows it.
	if !cmd.device.Profile.CanChangeURSWRZ {
		return cmd.IllegalRequest(), nil
	}
	if off+5 <= len(data) {
		cmd.device.Meta.URSWRZ = data[off+4]&0x01 != 0
	}
	return cmd.Ok(), nil
}

func EmulateZonedRead(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	lba := cmd.LBA()
	nrLBAs := uint64(cmd.XferLen())
	length := int(nrLBAs) * int(d.LBASize())
	if cmd.Buf == nil || len(cmd.Buf) < length {
		cmd.Buf = make([]byte, length)
	}
	if err := d.ReadLBAs(lba, nrLBAs, cmd.Buf[:length]); err != nil {
		if se, ok := err.(*SenseError); ok {
			return cmd.RespondError(se), nil
		}
		log.Errorf("zbc: read failed: %v", err)
		return cmd.MediumError(), nil
	}
	if _, err := cmd.Write(cmd.Buf[:length]); err != nil {
		log.Errorf("zbc: read/write-back failed: %v", err)
		return cmd.MediumError(), nil
	}
	return cmd.Ok(), nil
}

// reformatDevice re-runs FormatDevice against the device's own backing
// file and profile, wiping all data and metadata, then swaps the
// result into d in place so existing callers holding a *Device keep
// working against the reformatted state.
func reformatDevice(d *Device) error {
	oldStore := d.Store
	newDev, err := FormatDevice(d.File, &d.Config, d.Profile)
	if err != nil {
		return err
	}
	*d = *newDev
	if oldStore != nil {
		oldStore.Close()
	}
	return nil
}

// EmulateFormatUnit destroys and reinitializes the device exactly as
// the initial format did. SANITIZE and MUTATE also rebuild the zone
// layout; ZONE ACTIVATE changes realm types within it.
func EmulateFormatUnit(cmd *SCSICmd) (SCSIResponse, error) {
	if err := reformatDevice(cmd.device); err != nil {
		log.Errorf("zbc: format unit failed: %v", err)
		return cmd.TargetFailure(), nil
	}
	return cmd.Ok(), nil
}

// EmulateSanitize implements only the CRYPTOGRAPHIC ERASE sanitize
// type: any other requested sanitize type is rejected as an invalid
// field. A cryptographic erase is emulated the same way a real one
// destroys data without a media pass, by reformatting the device.
func EmulateSanitize(cmd *SCSICmd) (SCSIResponse, error) {
	sa := cmd.GetCDB(1) & 0x1f
	if sa != scsi.SanitizeSaCryptoErase {
		return cmd.IllegalRequest(), nil
	}
	if err := reformatDevice(cmd.device); err != nil {
		log.Errorf("zbc: sanitize failed: %v", err)
		return cmd.TargetFailure(), nil
	}
	return cmd.Ok(), nil
}

// EmulateSynchronizeCache flushes the device's metadata region to
// disk, one of the four command paths (the others being SANITIZE,
// FORMAT UNIT, and MUTATE) that make prior writes durable.
func EmulateSynchronizeCache(cmd *SCSICmd) (SCSIResponse, error) {
	if err := cmd.device.Flush(); err != nil {
		log.Errorf("zbc: synchronize cache failed: %v", err)
		return cmd.MediumError(), nil
	}
	return cmd.Ok(), nil
}

// EmulateReceiveDiagnostic flushes metadata and returns an empty
// diagnostic page: this target exposes no self-test or diagnostic
// pages of its own, so any request beyond the default page 0 supported-
// pages list comes back empty rather than with a sense error.
func EmulateReceiveDiagnostic(cmd *SCSICmd) (SCSIResponse, error) {
	if err := cmd.device.Flush(); err != nil {
		log.Errorf("zbc: receive diagnostic results failed: %v", err)
		return cmd.MediumError(), nil
	}
	buf := make([]byte, 4)
	cmd.Write(buf)
	return cmd.Ok(), nil
}

func EmulateZonedWrite(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	lba := cmd.LBA()
	nrLBAs := uint64(cmd.XferLen())
	length := int(nrLBAs) * int(d.LBASize())
	if cmd.Buf == nil || len(cmd.Buf) < length {
		cmd.Buf = make([]byte, length)
	}
	if _, err := cmd.Read(cmd.Buf[:length]); err != nil {
		log.Errorf("zbc: write/read-in failed: %v", err)
		return cmd.MediumError(), nil
	}
	if err := d.WriteLBAs(lba, nrLBAs, cmd.Buf[:length]); err != nil {
		if se, ok := err.(*SenseError); ok {
			return cmd.RespondError(se), nil
		}
		log.Errorf("zbc: write failed: %v", err)
		return cmd.MediumError(), nil
	}
	return cmd.Ok(), nil
}
