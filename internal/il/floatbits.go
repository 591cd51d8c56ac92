package il

import "math"

func int64FromFloat(f float64) int64   { return int64(math.Float64bits(f)) }
func floatFromInt64(bits int64) float64 { return math.Float64frombits(uint64(bits)) }
