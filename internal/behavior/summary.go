package behavior

import "tracesig/pkg/models"

// BuildResults aggregates reconstruction output into the queryable
// results structure consumed by signatures. Summary values keep their
// first-observation order with duplicates collapsed.
func BuildResults(records []*models.ProcessRecord, facts []models.Fact) *models.Results {
	results := &models.Results{}

	summaries := make(map[int]*models.ProcessSummary, len(records))
	for _, rec := range records {
		ps := &models.ProcessSummary{
			ProcessName:       rec.ProcessName,
			ProcessIdentifier: rec.PID,
			Threads:           []int{rec.PID},
			Summary:           make(map[string][]string),
			Calls:             rec.Calls,
		}
		summaries[rec.PID] = ps
		results.Behavior.Processes = append(results.Behavior.Processes, ps)
	}

	seenHosts := make(map[string]struct{})
	for _, fact := range facts {
		if fact.Category == FactProcess {
			continue
		}
		value, ok := fact.Value.(string)
		if !ok {
			continue
		}

		if ps := summaries[fact.PID]; ps != nil {
			if !contains(ps.Summary[fact.Category], value) {
				ps.Summary[fact.Category] = append(ps.Summary[fact.Category], value)
			}
		}

		if fact.Category == FactConnectsIP {
			if _, dup := seenHosts[value]; !dup {
				seenHosts[value] = struct{}{}
				results.Network.Hosts = append(results.Network.Hosts, value)
			}
		}
	}

	return results
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
