package cache

import "strconv"

// Incident statistics are cached under a generation number. Invalidation
// bumps the generation instead of deleting, so a reader that loaded stale
// counts before the bump writes them to a key nobody reads any more.
const (
	IncidentStatsKey           = "incidents:stats"
	IncidentStatsGenerationKey = IncidentStatsKey + ":gen"
)

// IncidentStatsVersionKey is the stats entry for generation gen.
func IncidentStatsVersionKey(gen int64) string {
	return IncidentStatsKey + ":v" + strconv.FormatInt(gen, 10)
}
