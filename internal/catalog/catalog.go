// Package catalog defines the data model shared by the search pipeline: raw
// records as returned by a record store, grouped logical works, and the
// response page handed to transport layers.
package catalog

// Record is one format-instance of a work (one file, one extension) as read
// from the record store. Records are immutable once read; the store owns the
// underlying data and a copy is handed to the core per query.
type Record struct {
	MD5       string `json:"md5"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	Extension string `json:"extension"`
	Filesize  int64  `json:"filesize,omitempty"`
	Language  string `json:"language,omitempty"`
	Year      string `json:"year,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	IPFSCID   string `json:"ipfs_cid,omitempty"`
}

// FormatVariant is one downloadable format of a grouped work.
type FormatVariant struct {
	Extension   string `json:"extension"`
	Filesize    int64  `json:"filesize,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	MD5         string `json:"md5"`
}

// GroupedResult is a logical work formed by merging records that share the
// same normalized title and author. ID is the MD5 of the first-seen format;
// Formats keeps first-appearance order.
type GroupedResult struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Author  string          `json:"author,omitempty"`
	Formats []FormatVariant `json:"formats"`
}

// SearchResponse is one fully formed result page.
type SearchResponse struct {
	Results    []GroupedResult `json:"results"`
	TotalRaw   int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalBooks int             `json:"total_books"`
}
