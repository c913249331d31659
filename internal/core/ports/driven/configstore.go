package driven

// ConfigStore persists user settings under flat, dot-separated keys such
// as "retrieval.top_k". Values keep the type the backend decoded them as;
// SettingsService does the conversion into domain.Settings.
type ConfigStore interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (any, bool)

	// Set stores a value. File-backed stores write through before returning.
	Set(key string, value any) error

	// Path identifies where settings live, for display.
	Path() string
}
