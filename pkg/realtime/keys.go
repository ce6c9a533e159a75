package realtime

// ChannelKey derives the canonical identity of a channel from a table and
// an optional equality filter. Two subscription requests with the same
// table and filter always resolve to the same key. The ":" and "="
// separators keep (table, column, value) unambiguous; table names and
// column names never contain either.
func ChannelKey(table string, filter *Filter) string {
	if filter == nil || filter.Column == "" {
		return table
	}
	return table + ":" + filter.Column + "=" + filter.Value
}
