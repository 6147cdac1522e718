package sketch

import (
	"fmt"
	"math"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// wellKnownMax is the upper bound (inclusive) of the well-known port
// range; ephemeralMin is the lower bound of the typical ephemeral
// range. Both are standard IANA conventions, not configuration.
const (
	wellKnownMax = 1023
	ephemeralMin = 32768
)

// Extract projects a sketch snapshot into a fixed, normalized
// FeatureVector. The mapping is deterministic: the same snapshot always
// yields the same vector under the same configuration, and unknown or
// empty fields map to models.UnsetFeatureSentinel rather than NaN.
func Extract(s models.SketchSnapshot) models.FeatureVector {
	v := make(models.FeatureVector, models.FeatureDimension)

	v[0] = logOrSentinel(s.PeerCardinality)
	v[1] = logOrSentinel(s.PortCardinality)

	v[2] = byteRatio(s.BytesIn, s.BytesOut)

	v[3] = portEntropy(s.TopPorts)

	wellKnown, ephemeral, other := portClassShares(s.TopPorts)
	v[4] = wellKnown
	v[5] = ephemeral
	v[6] = other

	v[7] = activityConcentration(s.ActiveHourBuckets)

	v[8] = float64(len(s.TopPorts)) // distinct-service count estimate (bounded top-K proxy)

	v[9] = directionality(s.BytesIn, s.BytesOut, wellKnown)

	v[10] = logOrSentinel(float64(s.FlowCount))
	v[11] = logOrSentinel(float64(s.BytesIn))
	v[12] = logOrSentinel(float64(s.BytesOut))

	v[13] = peerEntropy(s.TopPeers)

	v[14] = topDestinationConcentration(s.TopDestinations)

	v[15] = updateRate(s.UpdateCount, s.FirstSeen, s.LastSeen)

	v[16] = float64(len(s.TopPeers))
	v[17] = float64(len(s.TopDestinations))

	return v
}

func logOrSentinel(x float64) float64 {
	if x <= 0 {
		return models.UnsetFeatureSentinel
	}
	return math.Log1p(x)
}

func byteRatio(in, out uint64) float64 {
	if in == 0 && out == 0 {
		return models.UnsetFeatureSentinel
	}
	ratio := float64(in) / float64(out+1)
	const clamp = 100.0
	if ratio > clamp {
		ratio = clamp
	}
	return ratio
}

func portEntropy(ports []models.KeyCount) float64 {
	total := sumCounts(ports)
	if total == 0 {
		return models.UnsetFeatureSentinel
	}
	var h float64
	for _, p := range ports {
		if p.Count == 0 {
			continue
		}
		frac := float64(p.Count) / float64(total)
		h -= frac * math.Log2(frac)
	}
	return h
}

func peerEntropy(peers []models.KeyCount) float64 {
	return portEntropy(peers)
}

func sumCounts(kc []models.KeyCount) uint64 {
	var total uint64
	for _, k := range kc {
		total += k.Count
	}
	return total
}

func portClassShares(ports []models.KeyCount) (wellKnown, ephemeral, other float64) {
	total := sumCounts(ports)
	if total == 0 {
		return models.UnsetFeatureSentinel, models.UnsetFeatureSentinel, models.UnsetFeatureSentinel
	}
	var wk, eph, oth uint64
	for _, p := range ports {
		port, err := parsePort(p.Key)
		if err != nil {
			oth += p.Count
			continue
		}
		switch {
		case port <= wellKnownMax:
			wk += p.Count
		case port >= ephemeralMin:
			eph += p.Count
		default:
			oth += p.Count
		}
	}
	f := float64(total)
	return float64(wk) / f, float64(eph) / f, float64(oth) / f
}

func activityConcentration(buckets [24]uint64) float64 {
	var total uint64
	var max uint64
	for _, b := range buckets {
		total += b
		if b > max {
			max = b
		}
	}
	if total == 0 {
		return models.UnsetFeatureSentinel
	}
	return float64(max) / float64(total)
}

func directionality(bytesIn, bytesOut uint64, wellKnownShare float64) float64 {
	if bytesIn == 0 && bytesOut == 0 {
		return models.UnsetFeatureSentinel
	}
	// Server-like: predominantly inbound connections to well-known
	// ports and more bytes out than in (responses dominate). Scaled to
	// [0,1] where 1 is strongly server-like, 0 strongly client-like.
	volumeSignal := float64(bytesOut) / float64(bytesIn+bytesOut+1)
	if wellKnownShare < 0 {
		return volumeSignal
	}
	return (volumeSignal + wellKnownShare) / 2
}

func topDestinationConcentration(dests []models.TopDestination) float64 {
	if len(dests) == 0 {
		return models.UnsetFeatureSentinel
	}
	var total, max uint64
	for _, d := range dests {
		total += d.Bytes
		if d.Bytes > max {
			max = d.Bytes
		}
	}
	if total == 0 {
		return models.UnsetFeatureSentinel
	}
	return float64(max) / float64(total)
}

func parsePort(key string) (int, error) {
	var port int
	_, err := fmt.Sscanf(key, "%d", &port)
	return port, err
}

func updateRate(updates uint64, first, last time.Time) float64 {
	if first.IsZero() || last.IsZero() || updates == 0 {
		return models.UnsetFeatureSentinel
	}
	span := last.Sub(first).Hours()
	if span <= 0 {
		return models.UnsetFeatureSentinel
	}
	return math.Log1p(float64(updates) / span)
}
