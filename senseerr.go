package zbc

import (
	"fmt"

	"github.com/coreos/go-zbc/scsi"
)

// SenseError is a SCSI sense key + additional sense code, returned by
// every zbc operation that fails for a protocol reason (as opposed to
// an internal I/O error, which is wrapped separately). It generalizes
// the ad hoc CheckCondition/MediumError/IllegalRequest/TargetFailure
// preset responses into a single error type callers can build
// responses from or match on with errors.As.
type SenseError struct {
	Key byte
	ASC uint16
}

func (e *SenseError) Error() string {
	return fmt.Sprintf("sense key 0x%02x asc/ascq 0x%04x", e.Key, e.ASC)
}

func senseErr(key byte, asc uint16) *SenseError {
	return &SenseError{Key: key, ASC: asc}
}

// Preset sense errors used throughout the state machine, formatter,
// validator and I/O path. Named after the ASC.
func ErrLBAOutOfRange() *SenseError { return senseErr(scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange) }
func ErrInvalidFieldInCDB() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)
}
func ErrWriteBoundaryViolation() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscWriteBoundaryViolation)
}
func ErrReadBoundaryViolation() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscReadBoundaryViolation)
}
func ErrUnalignedWriteCommand() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscUnalignedWriteCommand)
}
func ErrAttemptToReadInvalidData() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscAttemptToReadInvalidData)
}
func ErrAttemptToAccessGapZone() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscAttemptToAccessGapZone)
}
func ErrZoneIsInactive() *SenseError { return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsInactive) }
func ErrZoneIsOffline() *SenseError  { return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsOffline) }
func ErrZoneIsReadOnly() *SenseError { return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsReadOnly) }
func ErrInsufficientZoneResources() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscInsufficientZoneResources)
}
func ErrInternalTargetFailure() *SenseError {
	return senseErr(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
}
func ErrMediumError() *SenseError { return senseErr(scsi.SenseMediumError, scsi.AscReadError) }
func ErrParameterListLengthError() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscParameterListLengthError)
}
func ErrInvalidFieldInParameterList() *SenseError {
	return senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList)
}

// deferredSenseDepth bounds the FIFO of pending sense triplets returned
// by REQUEST SENSE, grounded on the original dhsmr handler's
// fixed-size deferred sense buffer.
const deferredSenseDepth = 4

// deferredSense is a small ring buffer of SenseError, oldest dropped
// once full. REQUEST SENSE drains the oldest entry.
type deferredSense struct {
	buf [deferredSenseDepth]*SenseError
	n   int
}

func (d *deferredSense) push(e *SenseError) {
	if d.n < deferredSenseDepth {
		d.buf[d.n] = e
		d.n++
		return
	}
	copy(d.buf[0:], d.buf[1:])
	d.buf[deferredSenseDepth-1] = e
}

func (d *deferredSense) pop() *SenseError {
	if d.n == 0 {
		return nil
	}
	e := d.buf[0]
	copy(d.buf[0:], d.buf[1:])
	d.n--
	d.buf[d.n] = nil
	return e
}
