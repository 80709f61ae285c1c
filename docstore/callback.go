package docstore

// FormatCallback is invoked once at the start of LoadFromCache with the
// document-format tag the caller expects, letting the cache declare itself
// stale before any arena is touched (spec.md §6: "format detector at
// cache-load time: a callback the core invokes with the detected
// document-format tag before reading the stylesheet"). Returning false
// aborts the load; LoadFromCache then returns (false, nil) so the caller
// reparses the source document instead.
type FormatCallback func(format string) bool

// ProgressCallback mirrors the four callback families spec.md §6 names
// ("OnLoadFileProgress(0..100), OnSaveCacheFileProgress(0..100),
// OnNodeStylesUpdate{Start,Progress,End}, OnFormat{Start,End}"). Any or all
// of a Document's load/save calls may invoke it; callers that don't care
// about progress pass nil.
type ProgressCallback interface {
	OnLoadFileProgress(percent int)
	OnSaveCacheFileProgress(percent int)
	OnNodeStylesUpdateStart()
	OnNodeStylesUpdateProgress(percent int)
	OnNodeStylesUpdateEnd()
	OnFormatStart()
	OnFormatEnd()
}
