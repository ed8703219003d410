package domain

// ConfigError reports invalid strategy parameters. It is returned before any
// simulation work starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid strategy config: " + e.Reason
}

// DataError reports an unusable price history: empty, shorter than the long
// moving-average window, or out of date order. It is returned before any
// simulation work starts; no partial run is ever produced.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "invalid price data: " + e.Reason
}
