package signatures

import "tracesig/pkg/models"

// Default action sets for the summary-backed getters.
var (
	fileActions = []string{"files_opened", "files_read", "files_written", "files_deleted"}
	keyActions  = []string{"regkey_written", "regkey_opened", "regkey_read"}
)

// ListSignatures returns the names of signatures that already matched.
func (b *Base) ListSignatures() []string {
	if b.results == nil {
		return nil
	}
	names := make([]string, 0, len(b.results.Signatures))
	for _, sig := range b.results.Signatures {
		names = append(names, sig.Name)
	}
	return names
}

// GetProcesses returns process summaries, optionally restricted to one
// process name.
func (b *Base) GetProcesses(name string) []*models.ProcessSummary {
	if b.results == nil {
		return nil
	}
	var out []*models.ProcessSummary
	for _, proc := range b.results.Behavior.Processes {
		if name == "" || proc.ProcessName == name {
			out = append(out, proc)
		}
	}
	return out
}

// GetProcessesByPID returns process summaries, optionally restricted to
// one pid.
func (b *Base) GetProcessesByPID(pid *int) []*models.ProcessSummary {
	if b.results == nil {
		return nil
	}
	var out []*models.ProcessSummary
	for _, proc := range b.results.Behavior.Processes {
		if pid == nil || proc.ProcessIdentifier == *pid {
			out = append(out, proc)
		}
	}
	return out
}

// GetThreads returns the thread ids of the given process, or of all
// processes when pid is nil.
func (b *Base) GetThreads(pid *int) []int {
	var out []int
	for _, proc := range b.GetProcessesByPID(pid) {
		out = append(out, proc.Threads...)
	}
	return out
}

// getSummary collects summary values for the given actions across the
// selected processes, in aggregation order.
func (b *Base) getSummary(pid *int, actions []string) []string {
	var out []string
	for _, proc := range b.GetProcessesByPID(pid) {
		for _, action := range actions {
			out = append(out, proc.Summary[action]...)
		}
	}
	return out
}

// GetFiles returns files touched by the selected processes. Nil actions
// defaults to opened/read/written/deleted.
func (b *Base) GetFiles(pid *int, actions []string) []string {
	if actions == nil {
		actions = fileActions
	}
	return b.getSummary(pid, actions)
}

// GetKeys returns registry-equivalent keys touched by the selected
// processes.
func (b *Base) GetKeys(pid *int, actions []string) []string {
	if actions == nil {
		actions = keyActions
	}
	return b.getSummary(pid, actions)
}

// GetMutexes returns mutexes held by the selected processes.
func (b *Base) GetMutexes(pid *int) []string {
	return b.getSummary(pid, []string{"mutex"})
}

// CheckFile checks for a file being touched.
func (b *Base) CheckFile(pattern string, regex bool) bool {
	_, ok := b.checkValue(pattern, b.GetFiles(nil, nil), regex)
	return ok
}

// CheckKey checks for a registry-equivalent key being touched by the
// selected process and actions.
func (b *Base) CheckKey(pattern string, regex bool, actions []string, pid *int) (string, bool) {
	return b.checkValue(pattern, b.GetKeys(pid, actions), regex)
}

// CheckMutex checks for a mutex being held.
func (b *Base) CheckMutex(pattern string, regex bool) (string, bool) {
	return b.checkValue(pattern, b.GetMutexes(nil), regex)
}

// CheckAPI checks for an API being called, optionally scoped to one
// process name, returning the first matching API name.
func (b *Base) CheckAPI(pattern, process string, regex bool) (string, bool) {
	for _, proc := range b.GetProcesses(process) {
		if proc.Calls == nil {
			continue
		}
		var found string
		proc.Calls.Each(func(call *models.SyscallEvent) bool {
			if hit, ok := b.checkValue(pattern, call.API, regex); ok {
				found = hit
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// CheckArgumentCall checks a specific argument of an invoked call,
// optionally filtered by argument name, API name and category.
func (b *Base) CheckArgumentCall(call *models.SyscallEvent, pattern, name, api, category string, regex bool) (string, bool) {
	if api != "" && call.API != api {
		return "", false
	}
	if category != "" && call.Category != category {
		return "", false
	}
	for argName, argValue := range call.Arguments {
		if name != "" && argName != name {
			continue
		}
		if hit, ok := b.checkValue(pattern, argValue, regex); ok {
			return hit, true
		}
	}
	return "", false
}

// GetNetHosts returns contacted IPs.
func (b *Base) GetNetHosts() []string {
	if b.results == nil {
		return nil
	}
	return b.results.Network.Hosts
}

// GetNetDomains returns contacted domains.
func (b *Base) GetNetDomains() []models.Domain {
	if b.results == nil {
		return nil
	}
	return b.results.Network.Domains
}

// GetNetHTTP returns observed HTTP requests.
func (b *Base) GetNetHTTP() []models.HTTPRequest {
	if b.results == nil {
		return nil
	}
	return b.results.Network.HTTP
}

// GetNetUDP returns UDP observations.
func (b *Base) GetNetUDP() []string { return b.netList(func(n *models.NetworkResults) []string { return n.UDP }) }

// GetNetICMP returns ICMP observations.
func (b *Base) GetNetICMP() []string { return b.netList(func(n *models.NetworkResults) []string { return n.ICMP }) }

// GetNetIRC returns IRC observations.
func (b *Base) GetNetIRC() []string { return b.netList(func(n *models.NetworkResults) []string { return n.IRC }) }

// GetNetSMTP returns SMTP observations.
func (b *Base) GetNetSMTP() []string { return b.netList(func(n *models.NetworkResults) []string { return n.SMTP }) }

func (b *Base) netList(pick func(*models.NetworkResults) []string) []string {
	if b.results == nil {
		return nil
	}
	return pick(&b.results.Network)
}

// CheckIP checks for an IP address being contacted.
func (b *Base) CheckIP(pattern string, regex bool) (string, bool) {
	return b.checkValue(pattern, b.GetNetHosts(), regex)
}

// CheckDomain checks for a domain being contacted, returning the first
// matching record.
func (b *Base) CheckDomain(pattern string, regex bool) (*models.Domain, bool) {
	for i := range b.GetNetDomains() {
		item := &b.results.Network.Domains[i]
		if _, ok := b.checkValue(pattern, item.Domain, regex); ok {
			return item, true
		}
	}
	return nil, false
}

// CheckURL checks for an HTTP URI being requested, returning the first
// matching record.
func (b *Base) CheckURL(pattern string, regex bool) (*models.HTTPRequest, bool) {
	for i := range b.GetNetHTTP() {
		item := &b.results.Network.HTTP[i]
		if _, ok := b.checkValue(pattern, item.URI, regex); ok {
			return item, true
		}
	}
	return nil, false
}
