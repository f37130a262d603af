package spanmetricz

import "strings"

// TargetSeparator separates namespace segments in a span target.
const TargetSeparator = "::"

// EnterCountSuffix is appended to a span's key for the enter count value
// reported at close.
const EnterCountSuffix = "_enter_count"

// MetricName derives the metric key for a span from its target and name.
// Target separators become underscores: "app::worker" and "shave" give
// "app_worker_shave". An empty target yields the bare name.
func MetricName(target, name string) string {
	if target == "" {
		return name
	}
	var b strings.Builder
	b.Grow(len(target) + len(name) + 1)
	b.WriteString(strings.ReplaceAll(target, TargetSeparator, "_"))
	b.WriteByte('_')
	b.WriteString(name)
	return b.String()
}

// EnterCountName returns the name of the enter count value for key.
func EnterCountName(key string) string {
	return key + EnterCountSuffix
}
