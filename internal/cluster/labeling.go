package cluster

import "fmt"

// semanticLabel implements the priority chain of §4.5 step 3: profile
// field majority, then device-type majority, then directory-group
// majority, then a behavioral fallback.
func semanticLabel(members []string, byID map[string]Endpoint) (label, rationale string) {
	n := len(members)
	if n == 0 {
		return "Unknown", "empty cluster"
	}

	if top, count := majorityField(members, byID, func(e Endpoint) string { return e.Profile }); count >= ceilFrac(n, 0.80) {
		return top, fmt.Sprintf("%d/%d (%.0f%%) endpoints share identity-source profile %q", count, n, pct(count, n), top)
	}

	if top, count := majorityField(members, byID, func(e Endpoint) string { return e.DeviceType }); count >= ceilFrac(n, 0.70) {
		return top, fmt.Sprintf("%d/%d (%.0f%%) endpoints share device type %q", count, n, pct(count, n), top)
	}

	if top, count := majorityGroup(members, byID); count >= ceilFrac(n, 0.60) {
		label = top + "-Devices"
		return label, fmt.Sprintf("%d/%d (%.0f%%) endpoints share directory group %q", count, n, pct(count, n), top)
	}

	return behavioralLabel(members, byID)
}

func majorityField(members []string, byID map[string]Endpoint, field func(Endpoint) string) (string, int) {
	counts := make(map[string]int)
	for _, id := range members {
		v := field(byID[id])
		if v == "" {
			continue
		}
		counts[v]++
	}
	return topKey(counts)
}

func majorityGroup(members []string, byID map[string]Endpoint) (string, int) {
	counts := make(map[string]int)
	for _, id := range members {
		for _, g := range byID[id].Groups {
			counts[g]++
		}
	}
	return topKey(counts)
}

func topKey(counts map[string]int) (string, int) {
	var best string
	var bestCount int
	for k, v := range counts {
		if v > bestCount {
			best, bestCount = k, v
		}
	}
	return best, bestCount
}

func behavioralLabel(members []string, byID map[string]Endpoint) (string, string) {
	var serverLike, clientLike int
	for _, id := range members {
		f := byID[id].Features
		// feature index 9 is the directionality score from the feature
		// extractor: >=0.5 is server-like.
		if len(f) > 9 && f[9] >= 0.5 {
			serverLike++
		} else {
			clientLike++
		}
	}
	if serverLike >= clientLike {
		return "Inferred-Server-Role", fmt.Sprintf("%d/%d endpoints classify as server-like by traffic directionality", serverLike, len(members))
	}
	return "Inferred-Client-Role", fmt.Sprintf("%d/%d endpoints classify as client-like by traffic directionality", clientLike, len(members))
}

func ceilFrac(n int, frac float64) int {
	v := float64(n) * frac
	c := int(v)
	if float64(c) < v {
		c++
	}
	return c
}

func pct(count, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(count) / float64(n) * 100
}
