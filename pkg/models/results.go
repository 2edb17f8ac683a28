package models

// ProcessSummary is the aggregate per-process view consumed by signature
// query helpers.
type ProcessSummary struct {
	ProcessName       string              `json:"process_name"`
	ProcessIdentifier int                 `json:"process_identifier"`
	Threads           []int               `json:"threads"`
	Summary           map[string][]string `json:"summary"`
	Calls             CallStream          `json:"-"`
}

// Domain is one contacted domain with its resolved address.
type Domain struct {
	Domain string `json:"domain"`
	IP     string `json:"ip,omitempty"`
}

// HTTPRequest is one observed HTTP request.
type HTTPRequest struct {
	URI    string `json:"uri"`
	Host   string `json:"host,omitempty"`
	Method string `json:"method,omitempty"`
}

// NetworkResults aggregates network observations keyed by protocol.
type NetworkResults struct {
	Hosts   []string      `json:"hosts"`
	Domains []Domain      `json:"domains"`
	HTTP    []HTTPRequest `json:"http"`
	UDP     []string      `json:"udp"`
	ICMP    []string      `json:"icmp"`
	IRC     []string      `json:"irc"`
	SMTP    []string      `json:"smtp"`
}

// BehaviorResults holds the reconstructed per-process summaries.
type BehaviorResults struct {
	Processes []*ProcessSummary `json:"processes"`
}

// Results is the aggregate analysis structure signatures query and append
// their matches to.
type Results struct {
	Behavior   BehaviorResults    `json:"behavior2"`
	Network    NetworkResults     `json:"network"`
	Signatures []*SignatureResult `json:"signatures"`
}
