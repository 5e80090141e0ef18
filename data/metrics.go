package data

type MetricCollection map[string]interface{}

// MetricsProvider is implemented by anything in a pipeline that keeps
// counters: streams, streamers and channels.
type MetricsProvider interface {
	Metrics() MetricCollection
}

// WithPrefix returns a copy of m with every key prefixed, so collections
// from several providers can be logged as one set of fields.
func (m MetricCollection) WithPrefix(prefix string) MetricCollection {
	out := make(MetricCollection, len(m))
	for k, v := range m {
		out[prefix+k] = v
	}
	return out
}
