// Package cpuspec picks inference thread counts from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
	LogicalCores     int
}

var (
	intelCorePattern  = regexp.MustCompile(`intel.*core.*i[3579]-(1[234]\d00)`)
	intelUltraPattern = regexp.MustCompile(`intel.*core.*ultra\s+[579]\s+(?:processor\s+)?(\d{3})`)
	applePattern      = regexp.MustCompile(`apple\s+(m[1-4])(?:\s+(pro|max|ultra))?`)
)

// P-core counts of hybrid CPUs, keyed by model family. Non-hybrid CPUs are
// absent and fall back to the logical core count.
var (
	intelPerformanceCores = map[string]int{
		"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
		"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
		"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	}
	intelUltraPerformanceCores = map[string]int{
		"285": 8, "265": 8, "255": 8, "235": 6, "225": 4,
	}
	applePerformanceCores = map[string]int{
		"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
		"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
		"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
		"m4": 6, "m4 pro": 8, "m4 max": 12,
	}
)

// GetCPUSpec returns CPU specifications of the running host.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
		LogicalCores:     cpuid.CPU.LogicalCores,
	}
}

// GetOptimalThreadCount returns the recommended number of inference threads.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, available)
	}
	if c.LogicalCores > 0 {
		return min(c.LogicalCores, available)
	}
	return available
}

// ThreadsFor resolves a configured thread count. Zero or negative values
// share the optimal count between the given number of models.
func (c CPUSpec) ThreadsFor(configured, models int) int {
	if configured > 0 {
		return configured
	}
	return max(1, c.GetOptimalThreadCount()/max(1, models))
}

func performanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelCorePattern.FindStringSubmatch(brandName); m != nil {
		return intelPerformanceCores[m[1]]
	}
	if m := intelUltraPattern.FindStringSubmatch(brandName); m != nil {
		return intelUltraPerformanceCores[m[1]]
	}
	if m := applePattern.FindStringSubmatch(brandName); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return applePerformanceCores[chip]
	}
	return 0
}
