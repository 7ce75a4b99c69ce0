package domain

// Source identifies the upstream provider an event was scraped or loaded from.
type Source string

const (
	SourceBasketballReference Source = "basketball_reference"
	SourceNBAAPI              Source = "nba_api"
	SourceHoopR               Source = "hoopr"
	SourceESPN                Source = "espn"
	SourceManual              Source = "manual"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks that the source is set. Unlisted providers are accepted;
// provenance reports group them under their own name.
func (s Source) IsValid() bool {
	return s != ""
}
