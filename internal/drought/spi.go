package drought

import "math"

// SPIWindow is the number of prior days the standardized precipitation index
// is computed against.
const SPIWindow = 30

// SPI returns the standardized precipitation index for every index of rain.
// SPI[i] compares rain[i] against the mean and sample standard deviation of
// rain[i-SPIWindow : i] (the SPIWindow days before i, excluding i). It is nil
// for i < SPIWindow and 0 when the window has no spread.
func SPI(rain []float64) []*float64 {
	out := make([]*float64, len(rain))
	for i := SPIWindow; i < len(rain); i++ {
		mean, std := meanStd(rain[i-SPIWindow : i])
		v := 0.0
		if std > 0 {
			v = (rain[i] - mean) / std
		}
		out[i] = &v
	}
	return out
}

// meanStd returns the mean and the sample (n-1) standard deviation.
func meanStd(window []float64) (float64, float64) {
	n := float64(len(window))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}

// WeatherSeverity grades an SPI value: 0 when undefined, 1 (mild) at or above
// -1, 2 (moderate) at or above -1.5, 3 (severe) below that.
func WeatherSeverity(spi *float64) int {
	switch {
	case spi == nil:
		return 0
	case *spi >= -1.0:
		return 1
	case *spi >= -1.5:
		return 2
	default:
		return 3
	}
}

// BinarySPI flags an anomalously dry day.
func BinarySPI(spi *float64) int {
	if spi != nil && *spi < -1.0 {
		return 1
	}
	return 0
}
