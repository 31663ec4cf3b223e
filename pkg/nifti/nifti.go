package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"patchconv25d/internal/models"
)

// maxDim is the largest extent a NIfTI-1 header can describe
const maxDim = math.MaxInt16

// Load reads a volume from path. Files ending in .gz are decompressed.
func Load(path string) (*models.Volume, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	vol, h, err := Read(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, h, nil
}

// Read decodes a single-file NIfTI-1 image from r
func Read(r io.Reader) (*models.Volume, *Header, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading image: %w", err)
	}

	h, order, err := parseHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	bpv, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return nil, nil, err
	}

	shape := h.Shape()
	offset := int(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	need := offset + shape.Len()*bpv
	if len(buf) < need {
		return nil, nil, fmt.Errorf("image data truncated: have %d bytes, need %d", len(buf), need)
	}

	vol := models.NewVolume(shape.X, shape.Y, shape.Z)
	vol.Spacing = h.Spacing()
	decode(vol.Data, buf[offset:need], h.Datatype, order)

	if h.SclSlope != 0 && !math.IsNaN(float64(h.SclSlope)) {
		slope, inter := float64(h.SclSlope), float64(h.SclInter)
		if slope != 1 || inter != 0 {
			for i, v := range vol.Data {
				vol.Data[i] = v*slope + inter
			}
		}
	}
	return vol, h, nil
}

// decode converts raw voxels of datatype dt into dst
func decode(dst []float64, raw []byte, dt int16, order binary.ByteOrder) {
	for i := range dst {
		switch dt {
		case DTUint8:
			dst[i] = float64(raw[i])
		case DTInt8:
			dst[i] = float64(int8(raw[i]))
		case DTInt16:
			dst[i] = float64(int16(order.Uint16(raw[2*i:])))
		case DTUint16:
			dst[i] = float64(order.Uint16(raw[2*i:]))
		case DTInt32:
			dst[i] = float64(int32(order.Uint32(raw[4*i:])))
		case DTUint32:
			dst[i] = float64(order.Uint32(raw[4*i:]))
		case DTFloat32:
			dst[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		case DTFloat64:
			dst[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	}
}

// Save writes vol to path as little-endian float32. Paths ending in .gz are
// gzip-compressed.
func Save(path string, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}

	if err := Write(w, vol); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// Write encodes vol as a single-file NIfTI-1 image
func Write(w io.Writer, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if vol.X > maxDim || vol.Y > maxDim || vol.Z > maxDim {
		return fmt.Errorf("volume %s exceeds the NIfTI-1 dimension limit %d", vol.Shape(), maxDim)
	}

	var buf bytes.Buffer
	buf.Grow(dataOffset + 4*len(vol.Data))
	if err := binary.Write(&buf, binary.LittleEndian, newHeader(vol)); err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}
	// no extensions
	buf.Write([]byte{0, 0, 0, 0})

	var word [4]byte
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(float32(v)))
		buf.Write(word[:])
	}

	_, err := w.Write(buf.Bytes())
	return err
}
