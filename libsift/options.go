package libsift

import (
	"net/http"
	"time"

	"github.com/driversift/driversift/filter"
)

// Defaults used when the corresponding Options fields are unset.
const (
	DefaultDatasetFile   = `drivers.json`
	DefaultHeadersFile   = `headers.json`
	DefaultProbeInterval = 1 * time.Hour
)

// Options configures a Sift.
type Options struct {
	// URL is the dataset endpoint.
	//
	// If empty, [feed.DefaultURL] is used.
	URL string
	// DatasetFile is where the dataset body is cached.
	//
	// If empty, DefaultDatasetFile is used. The report is written next to
	// it, under the same name with the extension replaced by
	// "_processed.json".
	DatasetFile string
	// HeadersFile is where the remote's cache validators are recorded.
	//
	// If empty, DefaultHeadersFile is used.
	HeadersFile string
	// Spec is the selection criteria.
	//
	// Fewer than two groups (nil included) selects [filter.DefaultSpec];
	// see [filter.Process].
	Spec filter.Spec
	// Fields are the sample members to report.
	//
	// If empty, [filter.DefaultFields] is used.
	Fields []string
	// Client is used for all requests.
	//
	// If nil, [http.DefaultClient] is used.
	Client *http.Client
	// RequestTimeout bounds every individual request. Zero picks the feed
	// default.
	RequestTimeout time.Duration
	// ProbeInterval is the minimum wait between remote probes across calls
	// to Run; in between, Run reuses the cached dataset. The first Run of a
	// fresh Sift always probes. Zero means DefaultProbeInterval.
	ProbeInterval time.Duration
}
