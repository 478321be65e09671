package ml

import (
	"fmt"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType is a floating point storage format for parameters.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
)

// ParseDType accepts the usual spellings of a precision, including the
// torch.* names found in training configs.
func ParseDType(s string) (DType, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "torch.") {
	case "f32", "fp32", "float32", "float":
		return DTypeF32, nil
	case "f16", "fp16", "float16", "half":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	default:
		return DTypeF32, fmt.Errorf("unknown dtype %q", s)
	}
}

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "float32"
	case DTypeF16:
		return "float16"
	case DTypeBF16:
		return "bfloat16"
	default:
		return fmt.Sprintf("DType(%d)", int(t))
	}
}

// Size returns the number of bytes used to store one element.
func (t DType) Size() uint64 {
	switch t {
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 4
	}
}

// Round returns v as it would be stored in this precision.
func (t DType) Round(v float32) float32 {
	switch t {
	case DTypeF16:
		return float16.Fromfloat32(v).Float32()
	case DTypeBF16:
		return bfloat16.DecodeFloat32(bfloat16.EncodeFloat32([]float32{v}))[0]
	default:
		return v
	}
}

func (t DType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DType) UnmarshalText(b []byte) error {
	dt, err := ParseDType(string(b))
	if err != nil {
		return err
	}

	*t = dt
	return nil
}
