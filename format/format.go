package format

import (
	"fmt"
	"math"
)

const (
	Thousand = 1000
	Million  = Thousand * 1000
	Billion  = Million * 1000
	Trillion = Billion * 1000
)

// Parameters renders a parameter count, e.g. 6979584000 as "6.98B".
func Parameters(n uint64) string {
	switch {
	case n >= Trillion:
		return decimalPlace(float64(n)/Trillion) + "T"
	case n >= Billion:
		return decimalPlace(float64(n)/Billion) + "B"
	case n >= Million:
		return decimalPlace(float64(n)/Million) + "M"
	case n >= Thousand:
		return decimalPlace(float64(n)/Thousand) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

const (
	KibiByte = 1 << 10
	MebiByte = KibiByte << 10
	GibiByte = MebiByte << 10
	TebiByte = GibiByte << 10
)

// Bytes renders a size in binary units.
func Bytes(n uint64) string {
	switch {
	case n >= TebiByte:
		return fmt.Sprintf("%.1f TiB", float64(n)/TebiByte)
	case n >= GibiByte:
		return fmt.Sprintf("%.1f GiB", float64(n)/GibiByte)
	case n >= MebiByte:
		return fmt.Sprintf("%.1f MiB", float64(n)/MebiByte)
	case n >= KibiByte:
		return fmt.Sprintf("%.1f KiB", float64(n)/KibiByte)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func decimalPlace(number float64) string {
	switch {
	case number >= 100:
		return fmt.Sprintf("%.0f", number)
	case number >= 10:
		return fmt.Sprintf("%.1f", number)
	case number == math.Trunc(number):
		return fmt.Sprintf("%.0f", number)
	default:
		return fmt.Sprintf("%.2f", number)
	}
}
