//go:build windows

package watcher

// getInode returns 0: Stat_t is not available on Windows and nothing in the
// dispatch path depends on file identity.
func getInode(_ any) uint64 {
	return 0
}
