package arrclient

// alternateTitle is an entry of alternateTitles in both APIs.
type alternateTitle struct {
	Title string `json:"title"`
}

// movieResource is the subset of a Radarr /api/v3/movie entry we keep.
type movieResource struct {
	ID              int              `json:"id"`
	Title           string           `json:"title"`
	OriginalTitle   string           `json:"originalTitle"`
	TitleSlug       string           `json:"titleSlug"`
	Year            int              `json:"year"`
	TmdbID          int              `json:"tmdbId"`
	AlternateTitles []alternateTitle `json:"alternateTitles"`
}

// seriesResource is the subset of a Sonarr /api/v3/series entry we keep.
type seriesResource struct {
	ID              int              `json:"id"`
	Title           string           `json:"title"`
	TitleSlug       string           `json:"titleSlug"`
	Year            int              `json:"year"`
	TvdbID          int              `json:"tvdbId"`
	TmdbID          int              `json:"tmdbId"`
	AlternateTitles []alternateTitle `json:"alternateTitles"`
}
