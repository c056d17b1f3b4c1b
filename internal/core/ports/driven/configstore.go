package driven

// ConfigStore is a flat key/value view of the config file. Keys are dotted
// paths such as "retrieval.k". Typed getters return the zero value when a
// key is missing or holds an incompatible type; numeric getters accept any
// numeric type the file decoder produced.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	// GetStringSlice drops non-string elements.
	GetStringSlice(key string) []string

	// Set and Delete persist immediately.
	Set(key string, value any) error
	Delete(key string) error
}
