// Package util contains misc internal utilities.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// Arange returns the integers from start up to but not including end,
// separated by step.  A step <= 0 yields nil.
func Arange(start, end, step int) []int {
	if step <= 0 || end <= start {
		return nil
	}
	out := make([]int, 0, (end-start+step-1)/step)
	for v := start; v < end; v += step {
		out = append(out, v)
	}
	return out
}

// GetBit returns the value of a given bit in a byte
func GetBit(b byte, bitIndex uint) bool {
	return b&(1<<bitIndex) != 0
}

// SetBit sets bit bitIndex of b to value
func SetBit(b byte, bitIndex uint, value bool) byte {
	if value {
		return b | (1 << bitIndex)
	}
	return b &^ (1 << bitIndex)
}

// Clamp limits input to [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
