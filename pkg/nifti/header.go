// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). Only the first 3D volume of a series is used.
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"patchconv25d/internal/models"
)

const (
	headerSize = 348

	// dataOffset is the header plus the 4-byte extension flag
	dataOffset = 352
)

var (
	// ErrNotNIfTI is returned when the input lacks a NIfTI-1 header
	ErrNotNIfTI = errors.New("not a NIfTI-1 file")

	// ErrUnsupportedDatatype is returned for datatypes other than real scalars
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
)

// Datatype codes from nifti1.h
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// Unit codes for XyztUnits
const (
	UnitsMM  = 2
	UnitsSec = 8
)

// Header is the 348-byte NIfTI-1 header
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Shape returns the first three spatial dimensions; missing ones count as 1
func (h *Header) Shape() models.Shape {
	dim := func(i int) int {
		if int(h.Dim[0]) < i || h.Dim[i] < 1 {
			return 1
		}
		return int(h.Dim[i])
	}
	return models.Shape{X: dim(1), Y: dim(2), Z: dim(3)}
}

// Spacing returns the voxel size from pixdim[1..3]. Zero or missing spacings
// are reported as 1 and negative ones by their magnitude.
func (h *Header) Spacing() models.Spacing {
	sp := func(i int) float64 {
		v := math.Abs(float64(h.Pixdim[i]))
		if v == 0 || math.IsNaN(v) || int(h.Dim[0]) < i {
			return 1
		}
		return v
	}
	return models.Spacing{X: sp(1), Y: sp(2), Z: sp(3)}
}

// Description returns the descrip field as a string
func (h *Header) Description() string {
	return strings.TrimRight(string(h.Descrip[:]), "\x00 ")
}

// bytesPerVoxel returns the storage size of a datatype
func bytesPerVoxel(dt int16) (int, error) {
	switch dt {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedDatatype, dt)
}

// parseHeader decodes the header and reports the byte order of the file
func parseHeader(buf []byte) (*Header, binary.ByteOrder, error) {
	if len(buf) < headerSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrNotNIfTI, len(buf))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: bad header size", ErrNotNIfTI)
	}

	h := &Header{}
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), order, h); err != nil {
		return nil, nil, fmt.Errorf("error decoding header: %w", err)
	}

	switch string(h.Magic[:3]) {
	case "n+1":
	case "ni1":
		return nil, nil, fmt.Errorf("%w: header/image pairs (.hdr/.img) are not supported", ErrNotNIfTI)
	default:
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrNotNIfTI, h.Magic[:])
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return nil, nil, fmt.Errorf("%w: dim[0]=%d", ErrNotNIfTI, h.Dim[0])
	}
	return h, order, nil
}

// newHeader returns a float32 header describing vol
func newHeader(vol *models.Volume) *Header {
	h := &Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(vol.X), int16(vol.Y), int16(vol.Z), 1, 1, 1, 1},
		Datatype:  DTFloat32,
		Bitpix:    32,
		Pixdim: [8]float32{1, float32(vol.Spacing.X), float32(vol.Spacing.Y), float32(vol.Spacing.Z),
			0, 0, 0, 0},
		VoxOffset: dataOffset,
		SclSlope:  1,
		XyztUnits: UnitsMM | UnitsSec,
		QformCode: 1,
	}
	copy(h.Descrip[:], "patchconv25d response")
	copy(h.Magic[:], "n+1\x00")
	return h
}
