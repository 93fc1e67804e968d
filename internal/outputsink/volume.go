package outputsink

import "github.com/sendspin-audio/client-go/internal/audio"

// applyVolume scales samples by volume/100 (or zero if muted), clamping to
// 24-bit range to prevent overflow from the multiply.
func applyVolume(samples []int32, volume int, muted bool) []int32 {
	multiplier := volumeMultiplier(volume, muted)

	result := make([]int32, len(samples))
	for i, sample := range samples {
		scaled := int64(float64(sample) * multiplier)
		if scaled > audio.Max24Bit {
			scaled = audio.Max24Bit
		} else if scaled < audio.Min24Bit {
			scaled = audio.Min24Bit
		}
		result[i] = int32(scaled)
	}
	return result
}

func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
